package avatar

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// avatarPathMarker appears in every genuine uploaded avatar URL. Default
// placeholder art lives elsewhere.
const avatarPathMarker = "/profile_images/"

// sizeTokens rewrites known low-resolution variants, in order.
var sizeTokens = []struct{ from, to string }{
	{"200x200", "400x400"},
	{"_normal", "_400x400"},
	{"_bigger", "_400x400"},
	{"_mini", "_400x400"},
}

// metaKeys are checked in priority order.
var metaKeys = []string{"og:image", "og:image:url", "twitter:image", "twitter:image:src"}

// extractImageMeta returns the first image URL advertised in the page's
// Open Graph or Twitter card metadata.
func extractImageMeta(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	found := make(map[string]string)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var key, content string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "property", "name":
					key = strings.ToLower(strings.TrimSpace(a.Val))
				case "content":
					content = strings.TrimSpace(a.Val)
				}
			}
			if key != "" && content != "" {
				if _, seen := found[key]; !seen {
					found[key] = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, k := range metaKeys {
		if v, ok := found[k]; ok {
			return v, nil
		}
	}
	return "", nil
}

// isGenuineAvatar rejects URLs whose path is outside the uploaded-avatar
// tree. The query and fragment are ignored.
func isGenuineAvatar(imageURL string) bool {
	u, err := url.Parse(imageURL)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.Contains(u.Path, avatarPathMarker)
}

// upscale rewrites the size token in the avatar path, leaving the host,
// account segments and query untouched.
func upscale(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return imageURL
	}
	idx := strings.Index(u.Path, avatarPathMarker)
	if idx < 0 {
		return imageURL
	}
	head, tail := u.Path[:idx+len(avatarPathMarker)], u.Path[idx+len(avatarPathMarker):]
	for _, t := range sizeTokens {
		if strings.Contains(tail, t.from) {
			u.Path = head + strings.Replace(tail, t.from, t.to, 1)
			u.RawPath = ""
			return u.String()
		}
	}
	return imageURL
}
