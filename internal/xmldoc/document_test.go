package xmldoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

const sampleVoR = `<?xml version="1.0" encoding="utf-8"?>
<article xmlns:xlink="http://www.w3.org/1999/xlink" article-type="research-article">
  <front>
    <journal-meta>
      <issn pub-type="epub">1806-3713</issn>
      <issn pub-type="ppub">1806-3756</issn>
    </journal-meta>
    <article-meta>
      <article-id specific-use="scielo-v3" pub-id-type="publisher-id">TPg77CCrGj4wcbLCh9vG8bS</article-id>
      <article-id specific-use="scielo-v2" pub-id-type="publisher-id">S1806-37132022000201100</article-id>
      <article-id pub-id-type="doi">10.1590/1806-3713.2022.0001</article-id>
      <title-group>
        <article-title>Pulmonary <italic>function</italic> outcomes</article-title>
        <trans-title-group xml:lang="pt">
          <trans-title>Resultados de funcao pulmonar</trans-title>
        </trans-title-group>
      </title-group>
      <contrib-group>
        <contrib contrib-type="author">
          <name><surname>Silva</surname><given-names>Ana</given-names></name>
        </contrib>
        <contrib contrib-type="author">
          <name><surname>Souza</surname><given-names>Rui</given-names></name>
        </contrib>
      </contrib-group>
      <pub-date date-type="pub" publication-format="electronic">
        <day>15</day><month>02</month><year>2022</year>
      </pub-date>
      <volume>48</volume>
      <issue>2</issue>
      <fpage seq="a">1100</fpage>
      <lpage>1112</lpage>
      <related-article related-article-type="corrected-article" xlink:href="10.1590/1806-3713.2021.0999"/>
    </article-meta>
  </front>
  <body>
    <p>  First paragraph of the study body.  </p>
  </body>
</article>`

const sampleAOP = `<?xml version="1.0" encoding="utf-8"?>
<article article-type="research-article">
  <front>
    <journal-meta>
      <issn pub-type="epub">1806-3713</issn>
    </journal-meta>
    <article-meta>
      <article-id pub-id-type="doi">10.1590/1806-3713.2022.0002</article-id>
      <title-group><article-title>Ahead of print study</article-title></title-group>
      <contrib-group>
        <contrib contrib-type="author">
          <collab>Brazilian Thoracic <italic>Society</italic></collab>
        </contrib>
      </contrib-group>
      <pub-date date-type="pub"><year>2022</year></pub-date>
      <elocation-id>e20220002</elocation-id>
    </article-meta>
  </front>
</article>`

func TestParse(t *testing.T) {
	t.Run("invalid xml", func(t *testing.T) {
		_, err := Parse([]byte("<article><unclosed"), "bad.xml")
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrXMLParse.Code))
	})

	t.Run("no article root", func(t *testing.T) {
		_, err := Parse([]byte("<other/>"), "other.xml")
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrXMLParse.Code))
	})

	t.Run("valid", func(t *testing.T) {
		doc, err := Parse([]byte(sampleVoR), "1100.xml")
		require.NoError(t, err)
		assert.Equal(t, "1100.xml", doc.Filename())
	})
}

func TestDocumentAccessors(t *testing.T) {
	doc, err := Parse([]byte(sampleVoR), "1100.xml")
	require.NoError(t, err)

	assert.False(t, doc.IsAOP())
	assert.Equal(t, "TPg77CCrGj4wcbLCh9vG8bS", doc.V3())
	assert.Equal(t, "S1806-37132022000201100", doc.V2())
	assert.Empty(t, doc.AopPid())
	assert.Equal(t, "1806-3713", doc.ISSNElectronic())
	assert.Equal(t, "1806-3756", doc.ISSNPrint())
	assert.Equal(t, "48", doc.Volume())
	assert.Equal(t, "2", doc.Number())
	assert.Empty(t, doc.Suppl())
	assert.Equal(t, 2022, doc.PubYear())
	assert.Equal(t, "1100", doc.FPage())
	assert.Equal(t, "a", doc.FPageSeq())
	assert.Equal(t, "1112", doc.LPage())
	assert.Equal(t, "10.1590/1806-3713.2022.0001", doc.MainDOI())
	assert.Equal(t, "PULMONARY FUNCTION OUTCOMES|RESULTADOS DE FUNCAO PULMONAR", doc.ArticleTitles())
	assert.Equal(t, "SILVA|SOUZA", doc.Surnames())
	assert.Empty(t, doc.Collab())
	assert.Equal(t, "10.1590/1806-3713.2021.0999", doc.Links())
	assert.Equal(t, "FIRST PARAGRAPH OF THE STUDY BODY.", doc.PartialBody())
}

func TestDocumentAOP(t *testing.T) {
	doc, err := Parse([]byte(sampleAOP), "aop.xml")
	require.NoError(t, err)

	assert.True(t, doc.IsAOP())
	assert.Empty(t, doc.V2())
	assert.Empty(t, doc.V3())
	assert.Equal(t, "e20220002", doc.ElocationID())
	assert.Equal(t, "BRAZILIAN THORACIC SOCIETY", doc.Collab())
	assert.Empty(t, doc.Surnames())
}

func TestSetPids(t *testing.T) {
	doc, err := Parse([]byte(sampleAOP), "aop.xml")
	require.NoError(t, err)

	before := doc.FingerPrint()
	doc.SetV3("x4N27tVHLw9mW2pKq8bJdYc")
	doc.SetV2("S1806-37132022005000002")
	doc.SetAopPid("S1806-37132021005000099")

	assert.Equal(t, "x4N27tVHLw9mW2pKq8bJdYc", doc.V3())
	assert.Equal(t, "S1806-37132022005000002", doc.V2())
	assert.Equal(t, "S1806-37132021005000099", doc.AopPid())
	assert.NotEqual(t, before, doc.FingerPrint())

	// Setting again must overwrite, not duplicate.
	doc.SetV3("zzN27tVHLw9mW2pKq8bJdYc")
	raw, err := doc.Bytes()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "scielo-v3"))

	reparsed, err := Parse(raw, "aop.xml")
	require.NoError(t, err)
	assert.Equal(t, "zzN27tVHLw9mW2pKq8bJdYc", reparsed.V3())
}

func TestFingerPrintStable(t *testing.T) {
	a, err := Parse([]byte(sampleVoR), "a.xml")
	require.NoError(t, err)
	b, err := Parse([]byte(sampleVoR), "b.xml")
	require.NoError(t, err)

	assert.Len(t, a.FingerPrint(), 64)
	assert.Equal(t, a.FingerPrint(), b.FingerPrint())
	assert.Equal(t, a.FingerPrint(), a.FingerPrint())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "A B", Normalize("  a \n b  "))
	long := strings.Repeat("x", 100)
	assert.Len(t, Normalize(long), MaxFieldLen)
	assert.Empty(t, Normalize("   "))
}

func TestZipRoundTrip(t *testing.T) {
	pkg, err := BuildZip("1100.xml", []byte(sampleVoR))
	require.NoError(t, err)

	entries, err := FromZip(pkg)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, entries[0].Err)
	assert.Equal(t, "1100.xml", entries[0].Filename)
	assert.Equal(t, "S1806-37132022000201100", entries[0].Doc.V2())
}

func TestFromZip(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		_, err := FromZip([]byte("plain text"))
		require.Error(t, err)
	})

	t.Run("no xml entries", func(t *testing.T) {
		pkg, err := BuildZip("readme.txt", []byte("hi"))
		require.NoError(t, err)
		_, err = FromZip(pkg)
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrXMLParse.Code))
	})

	t.Run("bad entry does not abort batch", func(t *testing.T) {
		pkg, err := BuildZip("bad.xml", []byte("<article><unclosed"))
		require.NoError(t, err)
		entries, err := FromZip(pkg)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Error(t, entries[0].Err)
	})
}
