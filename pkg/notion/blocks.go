package notion

import (
	"time"

	"github.com/jomei/notionapi"
)

// maxTextLen is Notion's limit on the content of one rich text object.
const maxTextLen = 2000

// Text splits s into rich text objects no longer than Notion accepts.
func Text(s string) []notionapi.RichText {
	runes := []rune(s)
	if len(runes) == 0 {
		return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: ""}}}
	}
	var out []notionapi.RichText
	for start := 0; start < len(runes); start += maxTextLen {
		end := min(start+maxTextLen, len(runes))
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: string(runes[start:end])},
		})
	}
	return out
}

// TitleProp builds a title property.
func TitleProp(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: Text(s)}
}

// NumberProp builds a number property.
func NumberProp(f float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: f}
}

// TextProp builds a rich text property.
func TextProp(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: Text(s)}
}

// DateProp builds a date property spanning start to end. A zero end gives a
// single date.
func DateProp(start, end time.Time) notionapi.DateProperty {
	s := notionapi.Date(start)
	obj := &notionapi.DateObject{Start: &s}
	if !end.IsZero() {
		e := notionapi.Date(end)
		obj.End = &e
	}
	return notionapi.DateProperty{Type: notionapi.PropertyTypeDate, Date: obj}
}

// Heading2 builds a second-level heading block.
func Heading2(s string) notionapi.Block {
	return notionapi.Heading2Block{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading2},
		Heading2:   notionapi.Heading{RichText: Text(s)},
	}
}

// Paragraph builds a paragraph block.
func Paragraph(s string) notionapi.Block {
	return notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
		Paragraph:  notionapi.Paragraph{RichText: Text(s)},
	}
}

// Bullet builds a bulleted list item block.
func Bullet(s string) notionapi.Block {
	return notionapi.BulletedListItemBlock{
		BasicBlock:       notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeBulletedListItem},
		BulletedListItem: notionapi.ListItem{RichText: Text(s)},
	}
}

// Divider builds a horizontal rule block.
func Divider() notionapi.Block {
	return notionapi.DividerBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeDivider},
		Divider:    notionapi.Divider{},
	}
}
