package domain

import (
	"math"
	"time"

	"github.com/docker/docker/api/types/image"
)

// UntaggedImage stands in for an empty repo tag list.
const UntaggedImage = "<none>:<none>"

// CreatedLayout is how image creation times are displayed.
const CreatedLayout = "2006-01-02 15:04"

const bytesPerMB = 1024 * 1024

// Image is one entry of an image listing. Tags is never empty.
type Image struct {
	ID        string   `json:"id" yaml:"id"`
	Tags      []string `json:"tags" yaml:"tags"`
	SizeBytes int64    `json:"size_bytes" yaml:"size_bytes"`
	Created   int64    `json:"created" yaml:"created"`
}

// ImageRow is one display row per image tag.
type ImageRow struct {
	Tag     string  `json:"tag" yaml:"tag"`
	ID      string  `json:"id" yaml:"id"`
	SizeMB  float64 `json:"size_mb" yaml:"size_mb"`
	Created string  `json:"created" yaml:"created"`
}

// FromImageSummary maps a /images/json entry.
func FromImageSummary(s image.Summary) Image {
	tags := append([]string(nil), s.RepoTags...)
	if len(tags) == 0 {
		tags = []string{UntaggedImage}
	}
	size := s.Size
	if size < 0 {
		size = 0
	}
	created := s.Created
	if created < 0 {
		created = 0
	}
	return Image{
		ID:        s.ID,
		Tags:      tags,
		SizeBytes: size,
		Created:   created,
	}
}

// FromImageSummaries maps a whole listing, preserving engine order.
func FromImageSummaries(list []image.Summary) []Image {
	out := make([]Image, 0, len(list))
	for _, s := range list {
		out = append(out, FromImageSummary(s))
	}
	return out
}

// MegabytesRounded converts bytes to MiB rounded to one decimal place.
// Negative input is treated as zero.
func MegabytesRounded(b int64) float64 {
	if b <= 0 {
		return 0
	}
	return math.Round(float64(b)/bytesPerMB*10) / 10
}

// SizeMB is the display size.
func (i Image) SizeMB() float64 {
	return MegabytesRounded(i.SizeBytes)
}

// CreatedAt returns the creation time; an unknown time is the epoch.
func (i Image) CreatedAt() time.Time {
	return time.Unix(i.Created, 0)
}

// CreatedString formats the creation time in local time.
func (i Image) CreatedString() string {
	return i.CreatedAt().Local().Format(CreatedLayout)
}

// ShortID strips the digest algorithm and truncates to 12 characters.
func (i Image) ShortID() string {
	id := i.ID
	if len(id) > 7 && id[:7] == "sha256:" {
		id = id[7:]
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// Rows returns one display row per tag.
func (i Image) Rows() []ImageRow {
	rows := make([]ImageRow, 0, len(i.Tags))
	for _, tag := range i.Tags {
		rows = append(rows, ImageRow{
			Tag:     tag,
			ID:      i.ShortID(),
			SizeMB:  i.SizeMB(),
			Created: i.CreatedString(),
		})
	}
	return rows
}

// ImageRows flattens a listing into display rows.
func ImageRows(images []Image) []ImageRow {
	var rows []ImageRow
	for _, img := range images {
		rows = append(rows, img.Rows()...)
	}
	return rows
}
