package image

import (
	"fmt"
	"strings"

	fluxerr "github.com/nexusops/forge/pkg/errors"
)

// Name represents an untagged image a.k.a. an image repo: the
// registry domain plus the path to the image within it. The path, by
// our registry layout convention, is `organization/project/service`.
//
// Examples (stringified):
//   - ghcr.io/acme/nexus/svc-a
//   - localhost:5000/arbitrary/path/to/repo
type Name struct {
	Domain, Image string
}

func (i Name) String() string {
	if i.Image == "" {
		return "" // Doesn't make sense to return anything if it doesn't even have an image
	}
	var host string
	if i.Domain != "" {
		host = i.Domain + "/"
	}
	return fmt.Sprintf("%s%s", host, i.Image)
}

// Organization returns the first path element of the image, which by
// convention names the registry organization owning it.
func (i Name) Organization() string {
	if idx := strings.IndexByte(i.Image, '/'); idx > 0 {
		return i.Image[:idx]
	}
	return i.Image
}

// Service returns the last path element of the image, which by
// convention is the service the image was built for.
func (i Name) Service() string {
	if idx := strings.LastIndexByte(i.Image, '/'); idx >= 0 {
		return i.Image[idx+1:]
	}
	return i.Image
}

func (i Name) ToRef(tag Tag) Ref {
	return Ref{Name: i, Tag: tag}
}

// ParseName parses a string representation of an image name, e.g.
// "ghcr.io/acme/nexus/svc-a". The first path element is taken to be
// the registry domain if it contains a '.' or ':', following the
// usual image reference convention.
func ParseName(s string) (Name, error) {
	if s == "" {
		return Name{}, &fluxerr.Error{
			Type: fluxerr.Validation,
			Err:  fmt.Errorf("blank image name"),
			Help: "An image name must be supplied, e.g. ghcr.io/acme/nexus/svc-a",
		}
	}
	if strings.ContainsAny(s, "@ ") {
		return Name{}, &fluxerr.Error{
			Type: fluxerr.Validation,
			Err:  fmt.Errorf("invalid image name %q", s),
			Help: "Image names may not contain digests or spaces; supply host/organization/project/service",
		}
	}
	elements := strings.Split(s, "/")
	if len(elements) > 1 && strings.ContainsAny(elements[0], ".:") {
		return Name{Domain: elements[0], Image: strings.Join(elements[1:], "/")}, nil
	}
	return Name{Image: s}, nil
}

// Ref represents an image at a particular tag.
//
// Examples (stringified):
//   - ghcr.io/acme/nexus/svc-a:amd64-abc1234
//   - ghcr.io/acme/nexus/svc-a:amd64-latest
type Ref struct {
	Name
	Tag Tag
}

func (r Ref) String() string {
	return r.Name.String() + ":" + r.Tag.String()
}

// Kind distinguishes the two tags written on every push: the
// immutable content tag, and the floating latest pointer.
type Kind string

const (
	// KindSHA tags are bound permanently to one source commit; they
	// are authoritative for deployment identity.
	KindSHA Kind = "sha"
	// KindLatest tags are repointed on each push, as a convenience
	// for humans; they are never deployed from.
	KindLatest Kind = "latest"
)

// Tag is an architecture-prefixed image tag. Tags are derived, never
// hand-edited.
type Tag struct {
	Arch     string
	ContentID string // source commit short hash; empty for latest tags
	Kind     Kind
}

func (t Tag) String() string {
	switch t.Kind {
	case KindLatest:
		return t.Arch + "-latest"
	default:
		return t.Arch + "-" + t.ContentID
	}
}

// ParseTag parses a stringified tag, e.g. "amd64-abc1234" or
// "amd64-latest". The architecture is everything before the first
// dash.
func ParseTag(s string) (Tag, error) {
	idx := strings.IndexByte(s, '-')
	if idx <= 0 || idx == len(s)-1 {
		return Tag{}, &fluxerr.Error{
			Type: fluxerr.Validation,
			Err:  fmt.Errorf("malformed image tag %q", s),
			Help: "Deployed tags look like {arch}-{hash} or {arch}-latest; anything else was not written by this tool.",
		}
	}
	arch, rest := s[:idx], s[idx+1:]
	if rest == "latest" {
		return Tag{Arch: arch, Kind: KindLatest}, nil
	}
	return Tag{Arch: arch, ContentID: rest, Kind: KindSHA}, nil
}

// Pair is the two tags pushed for one image: the immutable
// `{arch}-{hash}` tag and the floating `{arch}-latest` tag.
type Pair struct {
	SHA    Tag
	Latest Tag
}

func (p Pair) Tags() []Tag {
	return []Tag{p.SHA, p.Latest}
}

// Resolve computes the tag pair for a service build. It is pure and
// deterministic: the same (service, arch, contentID) always yields
// the same pair. The service name takes no part in the tag value but
// is validated here because blank services indicate a broken caller.
func Resolve(service, arch, contentID string) (Pair, error) {
	var blank string
	switch {
	case service == "":
		blank = "service"
	case arch == "":
		blank = "architecture"
	case contentID == "":
		blank = "content identifier"
	}
	if blank != "" {
		return Pair{}, &fluxerr.Error{
			Type: fluxerr.Validation,
			Err:  fmt.Errorf("blank %s resolving image tags", blank),
			Help: fmt.Sprintf("The %s must not be empty; tags are computed as {arch}-{hash} and {arch}-latest.", blank),
		}
	}
	return Pair{
		SHA:    Tag{Arch: arch, ContentID: contentID, Kind: KindSHA},
		Latest: Tag{Arch: arch, Kind: KindLatest},
	}, nil
}
