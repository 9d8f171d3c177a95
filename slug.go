package main

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 100

var (
	// Characters replaced with a hyphen before stripping.
	slugUnsafe = regexp.MustCompile(`[ \t/+&:]`)
	// Everything that is not a letter, digit, underscore, hyphen or dot gets dropped.
	slugStrip   = regexp.MustCompile(`[^\p{L}\p{N}_.-]`)
	slugHyphens = regexp.MustCompile(`-+`)

	diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// slugify converts a page or attachment title to a safe, stable filename stem.
// The same input always yields the same output, within and across runs, so
// skip-existing reruns keep pointing at the same files.
func slugify(text string) string {
	if text == "" {
		text = "untitled"
	}

	slug := foldDiacritics(text)

	slug = strings.ReplaceAll(slug, " - ", "---")
	slug = slugUnsafe.ReplaceAllString(slug, "-")
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-_")

	if rs := []rune(slug); len(rs) > maxSlugLen {
		head := rs[:maxSlugLen]
		cut := -1
		for i := len(head) - 1; i >= 0; i-- {
			if head[i] == '-' {
				cut = i
				break
			}
		}
		// Prefer cutting at a word boundary, but not if that would throw
		// away more than half of the cap.
		if cut > maxSlugLen/2 {
			slug = string(head[:cut])
		} else {
			slug = string(head)
		}
	}

	if slug == "" {
		slug = contentHash(text)[:10]
	}
	return slug
}

// pageFilename returns the output filename for a page: slugified title plus
// the page ID, which keeps filenames unique even when titles collide.
func pageFilename(title, id string) string {
	return slugify(title) + "_" + id + ".html"
}

// attachmentFilename derives the stable local filename for an attachment.
// Confluence attachment IDs carry a conventional "att" prefix that is
// stripped; IDs that do not clean up to something alphanumeric fall back to a
// hash of the title. HTML attachments get a ".source" marker so the export
// never serves them as live pages.
func attachmentFilename(id, title string) string {
	clean := id
	for strings.HasPrefix(clean, "att") && len(clean) > 3 && isASCIIAlnum(clean[3:]) {
		clean = clean[3:]
	}
	if !isASCIIAlnum(clean) {
		clean = contentHash(title)[:12]
	}

	ext := "bin"
	if i := strings.LastIndex(title, "."); i >= 0 && i < len(title)-1 {
		ext = strings.ToLower(title[i+1:])
	}

	if ext == "html" || ext == "htm" {
		return clean + "." + ext + ".source"
	}
	return clean + "." + ext
}

func isASCIIAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// foldDiacritics rewrites accented characters to their base form (é -> e) so
// slugs stay ASCII for Latin titles; non-Latin scripts pass through.
func foldDiacritics(s string) string {
	folded, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		return s
	}
	return folded
}

// contentHash generates the MD5 hex digest of text, used as a stable
// fallback when nothing printable survives slugification.
func contentHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
