package feed

import (
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
var videoExtensions = []string{".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv", ".webm", ".m4v"}

// extractMediaFromHTML pulls img/video references out of an item's raw
// description markup. Only the description is inspected; linked pages are
// never fetched.
func extractMediaFromHTML(rawHTML string) []MediaRef {
	if rawHTML == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var refs []MediaRef
	seen := make(map[string]bool)

	add := func(url string, mt MediaType) {
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		refs = append(refs, MediaRef{URL: url, Type: mt})
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			src, _ = s.Attr("data-src")
		}
		add(src, MediaImage)
	})

	doc.Find("video source, video").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src, MediaVideo)
		}
	})

	return refs
}

// mediaTypeFromURL classifies an enclosure by MIME type, falling back to the
// URL's extension.
func mediaTypeFromURL(url, mimeType string) (MediaType, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaImage, true
	case strings.HasPrefix(mimeType, "video/"):
		return MediaVideo, true
	}

	ext := strings.ToLower(path.Ext(url))
	for _, e := range imageExtensions {
		if ext == e {
			return MediaImage, true
		}
	}
	for _, e := range videoExtensions {
		if ext == e {
			return MediaVideo, true
		}
	}
	return "", false
}
