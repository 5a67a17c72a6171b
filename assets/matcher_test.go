package assets

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindLocalAsset(t *testing.T) {
	files := []string{"merc-wolf.jpg", "merc-vipers.jpg"}

	tests := []struct {
		name string
		want string
	}{
		{name: "Wolf", want: "/assets/merc-wolf.jpg"},
		{name: "Vipers", want: "/assets/merc-vipers.jpg"},
		{name: "Nonexistent Creature", want: ""},
		{name: "", want: ""},
		{name: "!!", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FindLocalAsset(tt.name, files))
		})
	}
}

func TestFindLocalAssetPasses(t *testing.T) {
	t.Run("first match in listing order", func(t *testing.T) {
		files := []string{"assault-rifle.png", "sniper-rifle-gold.png"}
		require.Equal(t, "/assets/assault-rifle.png", FindLocalAsset("Assault Rifle", files))
		require.Equal(t, "/assets/assault-rifle.png", FindLocalAsset("Rifle", files))
	})

	t.Run("token match on first file with that token", func(t *testing.T) {
		files := []string{"sniper-rifle-gold.png", "assault-rifle.png"}
		require.Equal(t, "/assets/sniper-rifle-gold.png", FindLocalAsset("Rifle Mk2", files))
	})

	t.Run("token contained inside a longer file word", func(t *testing.T) {
		files := []string{"icon_deathmatch.webp"}
		require.Equal(t, "/assets/icon_deathmatch.webp", FindLocalAsset("Team Death", files))
	})

	t.Run("short token contained in file name", func(t *testing.T) {
		files := []string{"merc-vipers.jpg", "merc-wolf.jpg"}
		require.Equal(t, "/assets/merc-wolf.jpg", FindLocalAsset("Wo Xy", files))
	})

	t.Run("short token not contained anywhere", func(t *testing.T) {
		files := []string{"board.png"}
		require.Equal(t, "", FindLocalAsset("Ox", files))
	})

	t.Run("empty listing", func(t *testing.T) {
		require.Equal(t, "", FindLocalAsset("Wolf", nil))
	})
}

func TestListImagesMissingDirectory(t *testing.T) {
	files, err := ListImages(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestListImagesFiltersEntries(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"rank-1.png", "notes.txt", "Merc-Wolf.JPG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	files, err := ListImages(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"rank-1.png", "Merc-Wolf.JPG"}, files)
}

func TestCatalogCachesUntilReset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "merc-wolf.jpg"), []byte("x"), 0o644))

	catalog := NewCatalog(dir, "/static/img")
	require.Equal(t, "/static/img/merc-wolf.jpg", catalog.Match("Wolf"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "merc-vipers.jpg"), []byte("x"), 0o644))
	require.Equal(t, "", catalog.Match("Vipers"), "listing must be cached")

	catalog.Reset()
	require.Equal(t, "/static/img/merc-vipers.jpg", catalog.Match("Vipers"))
}

func TestCatalogMissingDirectory(t *testing.T) {
	catalog := NewCatalog(filepath.Join(t.TempDir(), "absent"), "")
	require.Empty(t, catalog.GetOrInit())
	require.Equal(t, "", catalog.Match("Wolf"))

	var nilCatalog *Catalog
	require.Equal(t, "", nilCatalog.Match("Wolf"))
}

func TestCatalogConcurrentReaders(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "merc-wolf.jpg"), []byte("x"), 0o644))
	catalog := NewCatalog(dir, "")

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = catalog.Match("Wolf")
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		require.Equal(t, "/assets/merc-wolf.jpg", got)
	}
}
