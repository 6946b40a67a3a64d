package importfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseJSONManifest(t *testing.T) {
	t.Parallel()

	manifest, err := Parse([]byte(`{
		"prefixId": "0b6c8f7e-6c1f-4d55-9b3e-2a2f5d7f9c11",
		"source": "agency block 2026-03",
		"isbns": ["978-0-306-40615-7", "9791090636071"]
	}`))
	require.NoError(t, err)
	require.NotNil(t, manifest.PrefixID)
	require.Equal(t, "0b6c8f7e-6c1f-4d55-9b3e-2a2f5d7f9c11", manifest.PrefixID.String())
	require.Equal(t, "agency block 2026-03", manifest.Source)
	require.Equal(t, []string{"978-0-306-40615-7", "9791090636071"}, manifest.Values)
}

func TestParseJSONManifestSchemaViolations(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"missing isbns":   `{"source": "x"}`,
		"empty isbns":     `{"isbns": []}`,
		"non string item": `{"isbns": [9780306406157]}`,
		"bad prefix id":   `{"isbns": ["9780306406157"], "prefixId": "not-a-uuid"}`,
		"unknown field":   `{"isbns": ["9780306406157"], "tenant": "acme"}`,
	}

	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid manifest")
		})
	}
}

func TestParseLines(t *testing.T) {
	t.Parallel()

	manifest, err := Parse([]byte("# block from agency\n9780306406157\n\n  979-10-90636-07-1  \n"))
	require.NoError(t, err)
	require.Nil(t, manifest.PrefixID)
	require.Equal(t, []string{"9780306406157", "979-10-90636-07-1"}, manifest.Values)

	_, err = Parse([]byte("# nothing here\n\n"))
	require.ErrorIs(t, err, ErrNoValues)
}

func TestChunk(t *testing.T) {
	t.Parallel()

	values := []string{"a", "b", "c", "d", "e"}
	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, Chunk(values, 2))
	require.Equal(t, [][]string{values}, Chunk(values, 0))
	require.Nil(t, Chunk(nil, 3))
}
