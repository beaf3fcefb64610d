package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/charmap"
)

func TestFitWIN1252(t *testing.T) {
	assert.Equal(t, "Blåbær €5", FitWIN1252("Blåbær €5"))
	assert.Equal(t, "Ok ? ?", FitWIN1252("Ok ✓ 日"))
	assert.Equal(t, "", FitWIN1252(""))
}

func TestToUTF8(t *testing.T) {
	raw, err := charmap.Windows1252.NewEncoder().Bytes([]byte("Søknad  "))
	assert.NoError(t, err)
	assert.Equal(t, "Søknad", ToUTF8(raw))
	assert.Equal(t, "", ToUTF8(nil))
}
