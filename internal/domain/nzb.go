package domain

import "encoding/xml"

type NZB struct {
	Head  NZBHead   `xml:"head"`
	Files []NZBFile `xml:"file"`
}

type NZBHead struct {
	Meta []NZBMeta `xml:"meta"`
}

type NZBMeta struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// MetaValue returns the value of the first <meta type="..."> entry
// matching typ, or "" if absent.
func (h NZBHead) MetaValue(typ string) string {
	for _, m := range h.Meta {
		if m.Type == typ {
			return m.Value
		}
	}
	return ""
}

type NZBFile struct {
	Subject  string       `xml:"subject,attr"`
	Poster   string       `xml:"poster,attr"`
	Groups   []string     `xml:"groups>group"`
	Segments []NZBSegment `xml:"segments>segment"`
}

type NZBSegment struct {
	XMLName   xml.Name `xml:"segment"`
	Number    int      `xml:"number,attr"`
	Bytes     int64    `xml:"bytes,attr"`
	MessageID string   `xml:",chardata"`
}

func (f *NZBFile) TotalSize() int64 {
	var total int64
	for _, s := range f.Segments {
		total += int64(s.Bytes)
	}
	return total
}
