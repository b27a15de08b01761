package nzbparser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonzbd/internal/domain"
)

const sampleNZB = `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
  <head>
    <meta type="name">My.Release.Name</meta>
    <meta type="password">hunter2</meta>
  </head>
  <file subject="[1/2] &quot;my.release.part01.rar&quot;" poster="poster@example.com">
    <groups>
      <group>alt.binaries.test</group>
    </groups>
    <segments>
      <segment number="1" bytes="500000">abc123@example.com</segment>
      <segment number="2" bytes="500000">def456@example.com</segment>
    </segments>
  </file>
  <file subject="[2/2] &quot;my.release.part02.rar&quot;" poster="poster@example.com">
    <groups>
      <group>alt.binaries.test</group>
    </groups>
    <segments>
      <segment number="1" bytes="250000">ghi789@example.com</segment>
    </segments>
  </file>
</nzb>`

func TestParseExtractsArticlesAndMeta(t *testing.T) {
	res, err := Parse(strings.NewReader(sampleNZB))
	require.NoError(t, err)

	assert.Equal(t, "My.Release.Name", res.Meta.Name)
	assert.Equal(t, "hunter2", res.Meta.Password)
	assert.Equal(t, int64(1250000), res.TotalSize)
	assert.Len(t, res.Files, 2)
	assert.Len(t, res.Articles, 3)
	assert.NotEmpty(t, res.ContentHash)

	first := res.Articles[0]
	assert.Equal(t, "abc123@example.com", first.MessageID)
	assert.Equal(t, int64(0), first.Offset)
	assert.Equal(t, int64(500000), first.Length)
	assert.Equal(t, domain.ArticleStatusPending, first.Status)

	second := res.Articles[1]
	assert.Equal(t, int64(500000), second.Offset, "offsets accumulate within a file")

	third := res.Articles[2]
	assert.Equal(t, int64(0), third.Offset, "offset resets for the next file")
}

func TestParseWithoutMetaLeavesEmptyFields(t *testing.T) {
	const noMeta = `<?xml version="1.0"?>
<nzb>
  <file subject="[1/1] &quot;x.bin&quot;" poster="p">
    <groups><group>g</group></groups>
    <segments><segment number="1" bytes="10">only@example.com</segment></segments>
  </file>
</nzb>`

	res, err := Parse(strings.NewReader(noMeta))
	require.NoError(t, err)
	assert.Empty(t, res.Meta.Name)
	assert.Empty(t, res.Meta.Password)
	assert.Equal(t, int64(10), res.TotalSize)
}

func TestParseRejectsMalformedXML(t *testing.T) {
	_, err := Parse(strings.NewReader("not xml at all <<<"))
	assert.Error(t, err)
}
