package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// maxImageSizeResponse bounds the image size CGI body read.
const maxImageSizeResponse = 64 << 10

// Keys recognised in the image size response.
const (
	keyImageWidth  = "image width"
	keyImageHeight = "image height"
)

var (
	errMissingWidth  = errors.New("image width missing from response")
	errMissingHeight = errors.New("image height missing from response")
)

// SchemaBuilder queries the camera for its image size and builds the
// output schema and encoding descriptor from it.
type SchemaBuilder struct {
	client    *http.Client
	endpoints Endpoints
	name      string
}

// NewSchemaBuilder creates a builder. A nil client uses http.DefaultClient.
func NewSchemaBuilder(client *http.Client, endpoints Endpoints, outputName string) *SchemaBuilder {
	if client == nil {
		client = http.DefaultClient
	}
	return &SchemaBuilder{
		client:    client,
		endpoints: endpoints.withDefaults(),
		name:      outputName,
	}
}

// Build issues one image size query and returns the schema and encoding for
// the reported frame size. Every failure is a *ConfigurationError.
func (b *SchemaBuilder) Build(ctx context.Context, address string) (OutputSchema, EncodingDescriptor, error) {
	width, height, err := b.QueryImageSize(ctx, address)
	if err != nil {
		return OutputSchema{}, EncodingDescriptor{}, &ConfigurationError{Address: address, Err: err}
	}
	return NewOutputSchema(b.name, width, height), NewEncodingDescriptor(), nil
}

// QueryImageSize returns the width and height reported by the camera.
func (b *SchemaBuilder) QueryImageSize(ctx context.Context, address string) (width, height int, err error) {
	target, err := b.endpoints.resolve(address, b.endpoints.ImageSizePath)
	if err != nil {
		return 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("building image size request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("querying image size: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, 0, fmt.Errorf("querying image size: unexpected status %s", resp.Status)
	}

	return parseImageSize(io.LimitReader(resp.Body, maxImageSizeResponse))
}

// parseImageSize reads "key = value" lines and extracts the image width and
// height. Keys match case-insensitively; unknown lines are ignored.
func parseImageSize(r io.Reader) (width, height int, err error) {
	var haveWidth, haveHeight bool

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case keyImageWidth:
			if width, err = parseDimension(key, value); err != nil {
				return 0, 0, err
			}
			haveWidth = true
		case keyImageHeight:
			if height, err = parseDimension(key, value); err != nil {
				return 0, 0, err
			}
			haveHeight = true
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("reading image size response: %w", err)
	}

	if !haveWidth {
		return 0, 0, errMissingWidth
	}
	if !haveHeight {
		return 0, 0, errMissingHeight
	}
	return width, height, nil
}

func parseDimension(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", key, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s %d must be positive", key, n)
	}
	return n, nil
}
