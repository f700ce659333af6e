package evtxml

import "encoding/xml"

// xmlEvent mirrors the subset of the Windows event schema
// (http://schemas.microsoft.com/win/2004/08/events/event) that the shipper reads.
type xmlEvent struct {
	XMLName       xml.Name      `xml:"Event"`
	System        xmlSystem     `xml:"System"`
	EventData     *xmlEventData `xml:"EventData"`
	RenderingInfo *xmlRendering `xml:"RenderingInfo"`
}

type xmlSystem struct {
	Provider struct {
		Name            string `xml:"Name,attr"`
		EventSourceName string `xml:"EventSourceName,attr"`
	} `xml:"Provider"`
	EventID     string `xml:"EventID"`
	Level       string `xml:"Level"`
	TimeCreated struct {
		SystemTime string `xml:"SystemTime,attr"`
	} `xml:"TimeCreated"`
	EventRecordID string `xml:"EventRecordID"`
	Channel       string `xml:"Channel"`
	Computer      string `xml:"Computer"`
}

type xmlEventData struct {
	Data []xmlData `xml:"Data"`
}

type xmlData struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

type xmlRendering struct {
	Culture string `xml:"Culture,attr"`
	Message string `xml:"Message"`
	Level   string `xml:"Level"`
}
