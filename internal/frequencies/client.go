package frequencies

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yegors/co-atis/pkg/logger"
)

// ErrStreamUnreachable is returned when the broadcast cannot be opened
var ErrStreamUnreachable = errors.New("stream unreachable")

// Client opens live ATIS audio streams. It deliberately does not retry:
// the broadcast is real-time and a second attempt would only start late.
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a stream client whose connect and response-header
// phases are bounded by connectTimeout. The body has no client-side
// timeout; callers bound it through the request context.
func NewClient(connectTimeout time.Duration, logger *logger.Logger) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
		DisableCompression:    true, // Audio is already compressed
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: connectTimeout,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.Named("stream-client"),
	}
}

// addCacheBreaker adds a dynamic cache breaker to the URL
func (c *Client) addCacheBreaker(url string) string {
	separator := "?"
	if strings.Contains(url, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%snocache=%d", url, separator, time.Now().UnixNano())
}

// StreamAudio opens the audio stream. The returned reader stays valid
// until ctx is done or the server closes the connection.
func (c *Client) StreamAudio(ctx context.Context, opts StreamOptions) (io.ReadCloser, StreamMetadata, error) {
	streamURL := c.addCacheBreaker(opts.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, StreamMetadata{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "*/*")
	req.Header.Set("Icy-MetaData", "0") // Raw audio only, no interleaved metadata
	req.Header.Set("User-Agent", "Co-ATIS/1.0")

	c.logger.Debug("Connecting to audio stream", logger.String("url", streamURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, StreamMetadata{}, fmt.Errorf("%w: %v", ErrStreamUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, StreamMetadata{}, fmt.Errorf("%w: unexpected status code %d", ErrStreamUnreachable, resp.StatusCode)
	}

	metadata := c.ExtractMetadata(resp.Header)

	c.logger.Debug("Connected to audio stream",
		logger.String("url", streamURL),
		logger.String("content_type", metadata.ContentType),
		logger.Int("bitrate", metadata.Bitrate),
	)

	return &bufferedReadCloser{
		Reader: bufio.NewReaderSize(resp.Body, 64*1024),
		Closer: resp.Body,
	}, metadata, nil
}

// bufferedReadCloser combines a buffered reader with a closer
type bufferedReadCloser struct {
	Reader *bufio.Reader
	Closer io.Closer
}

// Read implements the io.Reader interface
func (b *bufferedReadCloser) Read(p []byte) (n int, err error) {
	return b.Reader.Read(p)
}

// Close implements the io.Closer interface
func (b *bufferedReadCloser) Close() error {
	return b.Closer.Close()
}

// ExtractMetadata extracts metadata from response headers
func (c *Client) ExtractMetadata(headers http.Header) StreamMetadata {
	metadata := StreamMetadata{
		ContentType: headers.Get("Content-Type"),
		Name:        headers.Get("icy-name"),
	}

	if bitrateStr := headers.Get("icy-br"); bitrateStr != "" {
		var bitrate int
		if _, err := fmt.Sscanf(bitrateStr, "%d", &bitrate); err == nil {
			metadata.Bitrate = bitrate
		}
	}

	metadata.Format = FormatForContentType(metadata.ContentType)

	return metadata
}

// FormatForContentType maps a stream content type to a file extension
func FormatForContentType(contentType string) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch mediaType {
	case "audio/aac", "audio/aacp":
		return "aac"
	case "audio/ogg", "application/ogg":
		return "ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	default:
		// Most ATIS relays are Icecast MP3 streams
		return "mp3"
	}
}
