package domain

import "errors"

// ErrPostNotFound is returned by PostRepository lookups for absent slugs.
var ErrPostNotFound = errors.New("post not found")

// ErrSlugConflict is returned when a create would reuse an existing slug.
var ErrSlugConflict = errors.New("slug already exists")

// ErrMediaNotFound is returned by media lookups and deletes for absent paths.
var ErrMediaNotFound = errors.New("media file not found")
