package xmldoc

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

// MaxFieldLen bounds every normalized disambiguation field. The stored value
// is a lossy fingerprint, not full-text.
const MaxFieldLen = 64

// PidLen is the fixed length of v2/v3/aop pid values.
const PidLen = 23

// Document wraps a parsed JATS article and exposes the disambiguation
// attributes the registry matches on. Accessors are pure reads over the tree;
// mutators write article-id elements back so that re-serializing the document
// persists assigned identifiers. No I/O happens here.
type Document struct {
	tree     *etree.Document
	filename string

	fingerprint string
}

// Parse builds a Document from raw XML bytes.
func Parse(data []byte, filename string) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrXMLParse.Code, appErrors.ErrXMLParse.Status, "unable to parse xml")
	}
	if tree.SelectElement("article") == nil {
		return nil, appErrors.Clone(appErrors.ErrXMLParse, "document has no article root")
	}
	return &Document{tree: tree, filename: filename}, nil
}

// Filename returns the name the document arrived under.
func (d *Document) Filename() string { return d.filename }

// Bytes serializes the current state of the tree.
func (d *Document) Bytes() ([]byte, error) {
	return d.tree.WriteToBytes()
}

// FingerPrint is the sha256 hex digest of the serialized document. Memoized;
// invalidated by the pid mutators.
func (d *Document) FingerPrint() string {
	if d.fingerprint == "" {
		raw, err := d.tree.WriteToBytes()
		if err != nil {
			return ""
		}
		sum := sha256.Sum256(raw)
		d.fingerprint = hex.EncodeToString(sum[:])
	}
	return d.fingerprint
}

// IsAOP reports whether the document is ahead-of-print: none of volume,
// number or supplement present.
func (d *Document) IsAOP() bool {
	return d.Volume() == "" && d.Number() == "" && d.Suppl() == ""
}

func (d *Document) articleMeta() *etree.Element {
	return d.tree.FindElement("//front/article-meta")
}

func (d *Document) articleIDText(specificUse string) string {
	for _, el := range d.tree.FindElements("//front/article-meta/article-id") {
		if el.SelectAttrValue("specific-use", "") == specificUse {
			return strings.TrimSpace(el.Text())
		}
	}
	return ""
}

func (d *Document) setArticleID(specificUse, value string) {
	d.fingerprint = ""
	for _, el := range d.tree.FindElements("//front/article-meta/article-id") {
		if el.SelectAttrValue("specific-use", "") == specificUse {
			el.SetText(value)
			return
		}
	}
	meta := d.articleMeta()
	if meta == nil {
		return
	}
	el := meta.CreateElement("article-id")
	el.CreateAttr("specific-use", specificUse)
	el.CreateAttr("pub-id-type", "publisher-id")
	el.SetText(value)
}

// V2 returns the embedded legacy pid, or empty.
func (d *Document) V2() string { return d.articleIDText("scielo-v2") }

// V3 returns the embedded opaque pid, or empty.
func (d *Document) V3() string { return d.articleIDText("scielo-v3") }

// AopPid returns the embedded previous (ahead-of-print) pid, or empty.
func (d *Document) AopPid() string { return d.articleIDText("previous-pid") }

// SetV2 writes the legacy pid into the tree.
func (d *Document) SetV2(v string) { d.setArticleID("scielo-v2", v) }

// SetV3 writes the opaque pid into the tree.
func (d *Document) SetV3(v string) { d.setArticleID("scielo-v3", v) }

// SetAopPid writes the previous pid into the tree.
func (d *Document) SetAopPid(v string) { d.setArticleID("previous-pid", v) }

func (d *Document) issnByPubType(pubType string) string {
	for _, el := range d.tree.FindElements("//front/journal-meta/issn") {
		if el.SelectAttrValue("pub-type", "") == pubType {
			return strings.TrimSpace(el.Text())
		}
	}
	return ""
}

// ISSNElectronic returns the epub ISSN.
func (d *Document) ISSNElectronic() string { return d.issnByPubType("epub") }

// ISSNPrint returns the ppub ISSN.
func (d *Document) ISSNPrint() string { return d.issnByPubType("ppub") }

func (d *Document) metaText(path string) string {
	if el := d.tree.FindElement(path); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// Volume returns the issue volume, or empty.
func (d *Document) Volume() string { return d.metaText("//front/article-meta/volume") }

// Number returns the issue number, or empty.
func (d *Document) Number() string { return d.metaText("//front/article-meta/issue") }

// Suppl returns the issue supplement, or empty.
func (d *Document) Suppl() string { return d.metaText("//front/article-meta/supplement") }

// PubYear returns the publication year, 0 when absent or unparsable.
func (d *Document) PubYear() int {
	for _, el := range d.tree.FindElements("//front/article-meta/pub-date/year") {
		if year, err := strconv.Atoi(strings.TrimSpace(el.Text())); err == nil {
			return year
		}
	}
	return 0
}

// FPage returns the first page marker.
func (d *Document) FPage() string { return d.metaText("//front/article-meta/fpage") }

// FPageSeq returns the seq attribute of fpage.
func (d *Document) FPageSeq() string {
	if el := d.tree.FindElement("//front/article-meta/fpage"); el != nil {
		return el.SelectAttrValue("seq", "")
	}
	return ""
}

// LPage returns the last page marker.
func (d *Document) LPage() string { return d.metaText("//front/article-meta/lpage") }

// ElocationID returns the electronic location id.
func (d *Document) ElocationID() string { return d.metaText("//front/article-meta/elocation-id") }

// MainDOI returns the article's DOI.
func (d *Document) MainDOI() string {
	for _, el := range d.tree.FindElements("//front/article-meta/article-id") {
		if el.SelectAttrValue("pub-id-type", "") == "doi" {
			return strings.TrimSpace(el.Text())
		}
	}
	return ""
}

// ArticleTitles returns every article and translated title, normalized and
// pipe-joined into one bounded fingerprint string.
func (d *Document) ArticleTitles() string {
	var titles []string
	for _, path := range []string{
		"//front/article-meta/title-group/article-title",
		"//front/article-meta/title-group/trans-title-group/trans-title",
	} {
		for _, el := range d.tree.FindElements(path) {
			if t := flattenedText(el); t != "" {
				titles = append(titles, t)
			}
		}
	}
	return Normalize(strings.Join(titles, "|"))
}

// Surnames returns the normalized pipe-joined author surnames.
func (d *Document) Surnames() string {
	var surnames []string
	for _, el := range d.tree.FindElements("//front/article-meta/contrib-group/contrib/name/surname") {
		if s := strings.TrimSpace(el.Text()); s != "" {
			surnames = append(surnames, s)
		}
	}
	return Normalize(strings.Join(surnames, "|"))
}

// Collab returns the normalized collaboration name.
func (d *Document) Collab() string {
	if el := d.tree.FindElement("//front/article-meta/contrib-group/contrib/collab"); el != nil {
		return Normalize(flattenedText(el))
	}
	return ""
}

// Links returns the normalized pipe-joined related-article hrefs.
func (d *Document) Links() string {
	var hrefs []string
	for _, el := range d.tree.FindElements("//front/article-meta/related-article") {
		for _, attr := range el.Attr {
			if attr.Key == "href" {
				if v := strings.TrimSpace(attr.Value); v != "" {
					hrefs = append(hrefs, v)
				}
			}
		}
	}
	return Normalize(strings.Join(hrefs, "|"))
}

// PartialBody returns the first non-empty body paragraph, normalized.
func (d *Document) PartialBody() string {
	for _, el := range d.tree.FindElements("//body//p") {
		if t := flattenedText(el); t != "" {
			return Normalize(t)
		}
	}
	return ""
}

// Normalize upper-cases, collapses whitespace and caps the value at
// MaxFieldLen runes.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToUpper(s)
	runes := []rune(s)
	if len(runes) > MaxFieldLen {
		return string(runes[:MaxFieldLen])
	}
	return s
}

// flattenedText concatenates the element's text including nested inline
// markup such as italics.
func flattenedText(el *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, child := range e.Child {
			switch node := child.(type) {
			case *etree.CharData:
				b.WriteString(node.Data)
			case *etree.Element:
				walk(node)
			}
		}
	}
	walk(el)
	return strings.TrimSpace(b.String())
}
