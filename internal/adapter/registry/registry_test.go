package registry_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

type fakeProvider struct{ name string }

func (f fakeProvider) Name() string             { return f.name }
func (f fakeProvider) BuildURL(u string) string { return "https://" + f.name + ".example/" + u }
func (f fakeProvider) Check(context.Context, string) domain.Result {
	return domain.Result{Provider: f.name, Status: domain.StatusUnknown}
}

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type specProvider struct{ spec *registry.Spec }

func (s specProvider) Name() string             { return s.spec.Name }
func (s specProvider) BuildURL(u string) string { return s.spec.ExpandURL(u) }
func (s specProvider) Check(context.Context, string) domain.Result {
	return domain.Result{Provider: s.spec.Name, Status: domain.StatusUnknown}
}

func buildData(spec *registry.Spec) domain.Provider {
	return specProvider{spec: spec}
}

func TestRegistryOrderCodeFirstThenYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeYAML(t, dir, "providers.yaml", `
zeta:
  url: "https://zeta.example/{username}"
alpha:
  url: "https://alpha.example/{username}"
`)

	reg := registry.New([]string{path}, buildData, slog.Default())
	reg.Register("code_b", func(*registry.Spec) domain.Provider { return fakeProvider{name: "code_b"} })
	reg.Register("code_a", func(*registry.Spec) domain.Provider { return fakeProvider{name: "code_a"} })
	require.NoError(t, reg.Load())

	// code drivers by registration order, then YAML in document order
	require.Equal(t, []string{"code_b", "code_a", "zeta", "alpha"}, reg.Names())
}

func TestRegistryCodeOverridesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeYAML(t, dir, "providers.yaml", `
github:
  url: "https://github.com/{username}"
other:
  url: "https://other.example/{username}"
`)

	var gotSpec *registry.Spec
	reg := registry.New([]string{path}, buildData, slog.Default())
	reg.Register("github", func(spec *registry.Spec) domain.Provider {
		gotSpec = spec
		return fakeProvider{name: "github"}
	})
	require.NoError(t, reg.Load())

	require.Equal(t, []string{"github", "other"}, reg.Names())
	// the code driver received the YAML spec it consumed
	require.NotNil(t, gotSpec)
	require.Equal(t, "github", gotSpec.Name)
}

func TestRegistryBadDescriptorExcluded(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeYAML(t, dir, "providers.yaml", `
good:
  url: "https://good.example/{username}"
no_placeholder:
  url: "https://bad.example/profile"
bad_regex:
  url: "https://bad.example/{username}"
  regex: true
  success_patterns:
    - "([unclosed"
`)
	reg := registry.New([]string{path}, buildData, slog.Default())
	require.NoError(t, reg.Load())
	require.Equal(t, []string{"good"}, reg.Names())
}

func TestRegistryMissingFileSkipped(t *testing.T) {
	t.Parallel()
	reg := registry.New([]string{"/nonexistent/providers.yaml"}, buildData, slog.Default())
	require.NoError(t, reg.Load())
	require.Empty(t, reg.Names())
}

func TestRegistryReloadIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeYAML(t, dir, "providers.yaml", `
one:
  url: "https://one.example/{username}"
two:
  url: "https://two.example/{username}"
`)
	reg := registry.New([]string{path}, buildData, slog.Default())
	require.NoError(t, reg.Load())
	first := reg.Names()
	require.NoError(t, reg.Reload())
	require.Equal(t, first, reg.Names())
}

func TestRegistrySelect(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeYAML(t, dir, "providers.yaml", `
one:
  url: "https://one.example/{username}"
two:
  url: "https://two.example/{username}"
three:
  url: "https://three.example/{username}"
`)
	reg := registry.New([]string{path}, buildData, slog.Default())
	require.NoError(t, reg.Load())

	// empty selects all in registry order
	require.Len(t, reg.Select(nil), 3)

	// subset keeps registry order regardless of request order
	sel := reg.Select([]string{"three", "one", "nope"})
	require.Len(t, sel, 2)
	require.Equal(t, "one", sel[0].Name())
	require.Equal(t, "three", sel[1].Name())
}

func TestRegistryLaterFileOverridesEarlier(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := writeYAML(t, dir, "a.yaml", `
site:
  url: "https://old.example/{username}"
`)
	b := writeYAML(t, dir, "b.yaml", `
site:
  url: "https://new.example/{username}"
`)
	reg := registry.New([]string{a, b}, buildData, slog.Default())
	require.NoError(t, reg.Load())
	require.Equal(t, []string{"site"}, reg.Names())
	require.Equal(t, "https://new.example/alice", reg.Providers()[0].BuildURL("alice"))
}
