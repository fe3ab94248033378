package application

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropblog/dropblog/blog/domain"
)

// frontmatterDelimiter opens and closes the YAML metadata block.
const frontmatterDelimiter = "---"

// ErrMalformedFrontmatter is returned when a frontmatter block is present
// but cannot be decoded as a YAML mapping.
var ErrMalformedFrontmatter = errors.New("malformed frontmatter")

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// knownFrontmatterKeys is the closed field set of PostMetadata; anything
// else lands in the Extra bag and survives a parse/render round trip.
var knownFrontmatterKeys = map[string]bool{
	"title":      true,
	"slug":       true,
	"created_at": true,
	"updated_at": true,
	"category":   true,
	"tags":       true,
	"published":  true,
	"author":     true,
	"excerpt":    true,
}

// SplitFrontmatter splits a document into its frontmatter block and body.
// A document that does not open with the delimiter, or that never closes
// it, has no frontmatter and is returned whole as the body.
func SplitFrontmatter(doc string) (frontmatter string, body string, ok bool) {
	if !strings.HasPrefix(doc, frontmatterDelimiter) {
		return "", doc, false
	}

	lines := strings.Split(doc, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != frontmatterDelimiter {
			continue
		}
		frontmatter = strings.Join(lines[1:i], "\n")
		body = strings.Join(lines[i+1:], "\n")
		// The render layout puts one blank line between the closing
		// delimiter and the body; strip that single separator.
		body = strings.TrimPrefix(body, "\n")
		return frontmatter, body, true
	}

	return "", doc, false
}

// ParseMetadata decodes a frontmatter block into PostMetadata. Absent fields
// get defaults: the title falls back to the given file-derived title, the
// slug is generated from the title, timestamps default to now (updated_at
// to created_at), and published defaults to true.
func ParseMetadata(block string, fallbackTitle string) (domain.PostMetadata, error) {
	fields := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
		return domain.PostMetadata{}, fmt.Errorf("%w: %v", ErrMalformedFrontmatter, err)
	}

	meta := domain.PostMetadata{Published: true}

	if title, ok := stringValue(fields["title"]); ok {
		meta.Title = title
	} else {
		meta.Title = fallbackTitle
	}

	if slug, ok := stringValue(fields["slug"]); ok {
		meta.Slug = slug
	} else {
		meta.Slug = GenerateSlug(meta.Title)
	}

	if createdAt, ok := timeValue(fields["created_at"]); ok {
		meta.CreatedAt = createdAt
	} else {
		meta.CreatedAt = time.Now().UTC()
	}

	if updatedAt, ok := timeValue(fields["updated_at"]); ok {
		meta.UpdatedAt = updatedAt
	} else {
		meta.UpdatedAt = meta.CreatedAt
	}

	meta.Category, _ = stringValue(fields["category"])
	meta.Author, _ = stringValue(fields["author"])
	meta.Excerpt, _ = stringValue(fields["excerpt"])

	if published, ok := fields["published"].(bool); ok {
		meta.Published = published
	}

	if raw, ok := fields["tags"].([]any); ok {
		for _, item := range raw {
			if tag, ok := stringValue(item); ok {
				meta.Tags = append(meta.Tags, tag)
			}
		}
	}

	for key, value := range fields {
		if knownFrontmatterKeys[key] {
			continue
		}
		if meta.Extra == nil {
			meta.Extra = map[string]any{}
		}
		meta.Extra[key] = value
	}

	return meta, nil
}

// RenderPost serializes metadata and body back into a markdown document:
// the delimited YAML block, a blank line, then the body. Field order is
// fixed and extra fields are appended sorted, so output is deterministic.
func RenderPost(meta domain.PostMetadata, body string) (string, error) {
	type field struct {
		key   string
		value any
	}

	fields := []field{
		{"title", meta.Title},
		{"slug", meta.Slug},
		{"created_at", meta.CreatedAt.UTC().Format(time.RFC3339Nano)},
		{"updated_at", meta.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if meta.Category != "" {
		fields = append(fields, field{"category", meta.Category})
	}
	if len(meta.Tags) > 0 {
		fields = append(fields, field{"tags", meta.Tags})
	}
	fields = append(fields, field{"published", meta.Published})
	if meta.Author != "" {
		fields = append(fields, field{"author", meta.Author})
	}
	if meta.Excerpt != "" {
		fields = append(fields, field{"excerpt", meta.Excerpt})
	}

	extraKeys := make([]string, 0, len(meta.Extra))
	for key := range meta.Extra {
		extraKeys = append(extraKeys, key)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		fields = append(fields, field{key, meta.Extra[key]})
	}

	var block strings.Builder
	for _, f := range fields {
		// Marshal one key at a time; yaml.v3 handles quoting and
		// indentation, and single-key maps keep the order stable.
		line, err := yaml.Marshal(map[string]any{f.key: f.value})
		if err != nil {
			return "", fmt.Errorf("failed to serialize frontmatter field %q: %w", f.key, err)
		}
		block.Write(line)
	}

	return frontmatterDelimiter + "\n" +
		strings.TrimRight(block.String(), "\n") + "\n" +
		frontmatterDelimiter + "\n\n" +
		body, nil
}

// GenerateSlug derives a URL-safe slug from a title: lowercase, every run
// of characters outside [a-z0-9] collapsed to a single hyphen, with no
// leading or trailing hyphens.
func GenerateSlug(title string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
