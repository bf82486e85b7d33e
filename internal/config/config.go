package config

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "imgscrape"

	// DefaultTimeout is the per-request timeout for page and image fetches.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxPages bounds the number of pages processed in domain mode.
	DefaultMaxPages = 100

	// DefaultMaxDepth bounds the link distance from the root page.
	// UnlimitedDepth (-1) disables the bound.
	DefaultMaxDepth = 3

	// UnlimitedDepth disables the crawl depth bound.
	UnlimitedDepth = -1

	// DefaultConcurrency is the number of image downloads allowed in flight.
	DefaultConcurrency = 4

	// MinConcurrency and MaxConcurrency bound the Concurrency option.
	MinConcurrency = 1
	MaxConcurrency = 32

	// DefaultBaseDelay is the politeness delay used in stealth mode and as the
	// base for the HTTP 429 backoff (three times this value).
	DefaultBaseDelay = 1 * time.Second

	// DefaultQuality is the JPEG quality used when converting images.
	DefaultQuality = 90

	// ThumbnailSize is the edge length below which an image counts as a
	// thumbnail when both of its dimensions are smaller.
	ThumbnailSize = 200

	// DefaultOutputDir is the base folder for downloaded images.
	DefaultOutputDir = "downloads"

	// DefaultUserAgent identifies imgscrape in HTTP requests when stealth mode
	// is disabled.
	DefaultUserAgent = "imgscrape/1.0 (+https://github.com/nao1215/imgscrape)"

	// DefaultMaxBodySize limits the page body read by the fetcher.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxImageSize limits the image body read by the download manager.
	DefaultMaxImageSize = 50 * 1024 * 1024 // 50MB

	// DefaultRenderTimeout bounds one browser render of a page.
	DefaultRenderTimeout = 60 * time.Second
)

// CrawlMode selects between crawling a single page and a whole domain.
type CrawlMode string

const (
	// ModeSinglePage processes exactly the root page.
	ModeSinglePage CrawlMode = "single"
	// ModeDomain runs a breadth-first crawl over the root's host.
	ModeDomain CrawlMode = "domain"
)

// OrganizeMode selects how downloaded files are laid out under OutputDir.
type OrganizeMode string

const (
	// OrganizeFlat writes every file directly into OutputDir.
	OrganizeFlat OrganizeMode = "flat"
	// OrganizeByPage groups files by the source page host.
	OrganizeByPage OrganizeMode = "by-page"
	// OrganizeByDate groups files by the download date.
	OrganizeByDate OrganizeMode = "by-date"
	// OrganizeMirrored mirrors the source page host and path.
	OrganizeMirrored OrganizeMode = "mirrored"
)

// supportedConversions lists the formats images can be re-encoded into.
var supportedConversions = map[string]bool{
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"bmp":  true,
	"tiff": true,
}

// Config holds all options of a crawl run. It is built once by the CLI
// layer and passed to every component at construction; components never
// re-read it mid-run.
type Config struct {
	// RootURL is the page the crawl starts from.
	RootURL string

	// Mode selects single-page or domain crawling.
	Mode CrawlMode

	// MaxPages is the hard stop on processed pages in domain mode.
	// Zero or negative means unlimited.
	MaxPages int

	// MaxDepth is the maximum link distance from the root page.
	// UnlimitedDepth disables the bound.
	MaxDepth int

	// Concurrency is the number of image downloads allowed in flight.
	Concurrency int

	// Stealth enables randomized politeness delays and browser-like,
	// rotating request headers.
	Stealth bool

	// BaseDelay is the politeness delay base value.
	BaseDelay time.Duration

	// RespectRobots enables robots.txt compliance.
	RespectRobots bool

	// UseSitemap seeds the frontier with same-host sitemap.xml entries.
	UseSitemap bool

	// MinWidth, MinHeight, MaxWidth and MaxHeight bound image dimensions in
	// pixels. Zero disables the respective bound.
	MinWidth  int
	MinHeight int
	MaxWidth  int
	MaxHeight int

	// MinFileSizeKB and MaxFileSizeKB bound the raw image size in KB.
	// Zero disables the respective bound.
	MinFileSizeKB int
	MaxFileSizeKB int

	// SkipThumbnails skips images whose width and height are both below
	// ThumbnailSize.
	SkipThumbnails bool

	// IncludeAnimatedGIF adds gif to the recognized image extensions.
	IncludeAnimatedGIF bool

	// URLFilter is a regular expression image URLs must match.
	// Empty disables the filter.
	URLFilter string

	// ConvertTo is the target format (jpeg, png, gif, bmp, tiff).
	// Empty keeps the original bytes.
	ConvertTo string

	// Quality is the JPEG encoding quality (1-100) used by conversion.
	Quality int

	// Organize selects the output layout.
	Organize OrganizeMode

	// OutputDir is the base output folder.
	OutputDir string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// UserAgent is the User-Agent header used when stealth mode is off.
	UserAgent string

	// MaxBodySize limits page bodies in bytes.
	MaxBodySize int64

	// MaxImageSize limits image bodies in bytes.
	MaxImageSize int64

	// RenderJS asks a headless browser to render each page before
	// extraction. Rendering failures fall back to the static markup.
	RenderJS bool

	// RenderTimeout bounds one browser render.
	RenderTimeout time.Duration

	// ProxyAddress routes all requests through a SOCKS5 proxy ("host:port").
	// Empty means direct connections.
	ProxyAddress string

	// RequestsPerSecond caps the global request rate. Zero means no cap.
	RequestsPerSecond float64

	// Resume merges a matching checkpoint into the run when present.
	Resume bool

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON selects JSON log output.
	LogJSON bool

	// ConfigFilePath is the YAML site configuration file path.
	ConfigFilePath string

	// SiteConfigs holds site-specific settings loaded from the YAML file.
	SiteConfigs *File

	// DataDir holds checkpoints and the history database.
	// Defaults to the XDG data directory.
	DataDir string

	// SaveToDB records runs and downloaded images in the history database.
	SaveToDB bool

	// JSONReport and MarkdownReport select the summary format.
	// They are mutually exclusive; neither means a text table.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the summary to a file instead of stdout.
	ReportFile string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Mode:           ModeDomain,
		MaxPages:       DefaultMaxPages,
		MaxDepth:       DefaultMaxDepth,
		Concurrency:    DefaultConcurrency,
		BaseDelay:      DefaultBaseDelay,
		RespectRobots:  true,
		UseSitemap:     true,
		SkipThumbnails: true,
		Quality:        DefaultQuality,
		Organize:       OrganizeFlat,
		OutputDir:      DefaultOutputDir,
		Timeout:        DefaultTimeout,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		MaxImageSize:   DefaultMaxImageSize,
		RenderTimeout:  DefaultRenderTimeout,
		Resume:         true,
		DataDir:        XDGDataDir(),
		SaveToDB:       true,
	}
}

// XDGDataDir returns the XDG data directory for imgscrape.
// On Linux: ~/.local/share/imgscrape
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for imgscrape.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// CheckpointDir returns the directory checkpoint documents are stored in.
func (c *Config) CheckpointDir() string {
	return filepath.Join(c.DataDir, "checkpoints")
}

// NormalizedConvertFormat returns ConvertTo lower-cased with "jpg" mapped to
// "jpeg" and "tif" mapped to "tiff".
func (c *Config) NormalizedConvertFormat() string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.ConvertTo), "."))
	switch f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	}
	return f
}

// DelayEnabled reports whether politeness delays apply to this run.
func (c *Config) DelayEnabled() bool {
	return c.Stealth && c.BaseDelay > 0
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RootURL) == "" {
		return ErrNoTarget
	}

	if c.Mode != ModeDomain && c.Mode != ModeSinglePage {
		return ErrInvalidMode
	}

	if c.Concurrency < MinConcurrency || c.Concurrency > MaxConcurrency {
		return ErrInvalidConcurrency
	}

	if c.MaxDepth < UnlimitedDepth {
		return ErrInvalidMaxDepth
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BaseDelay < 0 {
		return ErrInvalidDelay
	}

	switch c.Organize {
	case OrganizeFlat, OrganizeByPage, OrganizeByDate, OrganizeMirrored:
	default:
		return ErrInvalidOrganize
	}

	if c.ConvertTo != "" && !supportedConversions[c.NormalizedConvertFormat()] {
		return ErrInvalidConvertFormat
	}

	if c.Quality < 1 || c.Quality > 100 {
		return ErrInvalidQuality
	}

	if c.URLFilter != "" {
		if _, err := regexp.Compile(c.URLFilter); err != nil {
			return ErrInvalidURLFilter
		}
	}

	if c.MinFileSizeKB < 0 || c.MaxFileSizeKB < 0 ||
		(c.MaxFileSizeKB > 0 && c.MinFileSizeKB > c.MaxFileSizeKB) {
		return ErrInvalidSizeBounds
	}

	if c.MinWidth < 0 || c.MinHeight < 0 || c.MaxWidth < 0 || c.MaxHeight < 0 ||
		(c.MaxWidth > 0 && c.MinWidth > c.MaxWidth) ||
		(c.MaxHeight > 0 && c.MinHeight > c.MaxHeight) {
		return ErrInvalidDimensionBounds
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 || c.MaxImageSize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}

	return nil
}
