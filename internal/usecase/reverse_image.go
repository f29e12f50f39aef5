package usecase

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// ReverseImageLink is one search-engine entry point for a given image URL.
type ReverseImageLink struct {
	Engine string `json:"engine"`
	URL    string `json:"url"`
}

// reverseEngines is the fixed engine list; order is part of the contract.
var reverseEngines = []struct {
	name     string
	template string
}{
	{"google_images", "https://www.google.com/searchbyimage?image_url=%s"},
	{"google_lens", "https://lens.google.com/uploadbyurl?url=%s"},
	{"bing_visual", "https://www.bing.com/images/search?view=detailv2&iss=sbi&q=imgurl:%s"},
	{"tineye", "https://www.tineye.com/search?url=%s"},
	{"yandex_images", "https://yandex.com/images/search?rpt=imageview&url=%s"},
}

// ReverseImageLinks expands an image URL into the reverse-search entry
// points of the supported engines. It only builds links; no request is
// ever issued against the engines.
func ReverseImageLinks(imageURL string) ([]ReverseImageLink, error) {
	trimmed := strings.TrimSpace(imageURL)
	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("op=usecase.ReverseImageLinks: image url: %w", domain.ErrInvalidArgument)
	}
	escaped := url.QueryEscape(trimmed)
	out := make([]ReverseImageLink, 0, len(reverseEngines))
	for _, e := range reverseEngines {
		out = append(out, ReverseImageLink{Engine: e.name, URL: fmt.Sprintf(e.template, escaped)})
	}
	return out, nil
}
