package docstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/common"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegister_AndGet(t *testing.T) {
	s := NewStore(nil)
	path := writeTemp(t, "contract.pdf", "%PDF-1.4 fake")

	res, err := s.Register(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.Equal(t, constants.FormatPDF, res.Format)
	assert.NotEmpty(t, res.HashHex)

	doc, err := s.Get(res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "contract.pdf", doc.Filename)
	assert.Equal(t, path, doc.Path)
}

func TestRegister_DeduplicatesByContent(t *testing.T) {
	s := NewStore(nil)
	first := writeTemp(t, "a.pdf", "identical bytes")
	second := writeTemp(t, "b.pdf", "identical bytes")

	r1, err := s.Register(context.Background(), first)
	require.NoError(t, err)
	r2, err := s.Register(context.Background(), second)
	require.NoError(t, err)

	assert.True(t, r2.Deduplicated)
	assert.Equal(t, r1.DocumentID, r2.DocumentID)
	assert.Equal(t, r1.HashHex, r2.HashHex)
}

func TestRegister_RejectsUnsupportedExtension(t *testing.T) {
	s := NewStore(nil)
	path := writeTemp(t, "notes.txt", "plain text")

	_, err := s.Register(context.Background(), path)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestRegister_MissingFile(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Register(context.Background(), filepath.Join(t.TempDir(), "ghost.pdf"))
	assert.Error(t, err)
}

func TestRegister_DocxFormat(t *testing.T) {
	s := NewStore(nil)
	path := writeTemp(t, "Agreement.DOCX", "docx bytes")

	res, err := s.Register(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, constants.FormatDOCX, res.Format)
}

func TestGet_Unknown(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
