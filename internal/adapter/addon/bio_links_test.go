package addon_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/social-hunt/internal/adapter/addon"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

func bioResult(bio string) domain.Result {
	return domain.Result{
		Provider: "site",
		Status:   domain.StatusFound,
		Profile:  domain.Profile{"bio": bio},
	}
}

func TestBioLinksURLs(t *testing.T) {
	t.Parallel()
	results := []domain.Result{bioResult("check https://blog.example.com/posts and http://other.io/x.")}
	addon.NewBioLinks().Run(context.Background(), "alice", results)

	urls, _ := results[0].Profile["bio_urls"].([]string)
	require.Equal(t, []string{"https://blog.example.com/posts", "http://other.io/x"}, urls)

	domains, _ := results[0].Profile["bio_domains"].([]string)
	require.Equal(t, []string{"example.com", "other.io"}, domains)
}

func TestBioLinksBareDomainToETLDPlusOne(t *testing.T) {
	t.Parallel()
	results := []domain.Result{bioResult("my shop: store.shop.example.co.uk and www.plain.dev")}
	addon.NewBioLinks().Run(context.Background(), "alice", results)

	domains, _ := results[0].Profile["bio_domains"].([]string)
	require.Contains(t, domains, "example.co.uk")
	require.Contains(t, domains, "plain.dev")
}

func TestBioLinksHandles(t *testing.T) {
	t.Parallel()
	results := []domain.Result{bioResult("find me @Alice_99 or @bob.smith; mail me at me@example.com")}
	addon.NewBioLinks().Run(context.Background(), "alice", results)

	handles, _ := results[0].Profile["bio_handles"].([]string)
	require.Contains(t, handles, "alice_99")
	require.Contains(t, handles, "bob.smith")
	// email local parts are not handles
	require.NotContains(t, handles, "example.com")
}

func TestBioLinksSkipsNonFound(t *testing.T) {
	t.Parallel()
	results := []domain.Result{
		{Provider: "a", Status: domain.StatusNotFound},
		{Provider: "b", Status: domain.StatusFound, Profile: domain.Profile{"bio": "no links here"}},
	}
	addon.NewBioLinks().Run(context.Background(), "alice", results)
	require.Nil(t, results[0].Profile)
	require.NotContains(t, results[1].Profile, "bio_urls")
	require.NotContains(t, results[1].Profile, "bio_domains")
}

func TestBioLinksDeduplicates(t *testing.T) {
	t.Parallel()
	results := []domain.Result{bioResult("https://example.com/a https://example.com/a example.com")}
	addon.NewBioLinks().Run(context.Background(), "alice", results)
	urls, _ := results[0].Profile["bio_urls"].([]string)
	require.Equal(t, []string{"https://example.com/a"}, urls)
	domains, _ := results[0].Profile["bio_domains"].([]string)
	require.Equal(t, []string{"example.com"}, domains)
}
