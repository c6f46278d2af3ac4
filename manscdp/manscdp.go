// Package manscdp models the GB/T 28181 MANSCDP XML bodies carried by SIP
// MESSAGE and handles their GB2312/GB18030 transcoding.
package manscdp

import (
	"encoding/xml"
	"fmt"
)

// Command names from the CmdType element.
const (
	CmdKeepalive    = "Keepalive"
	CmdCatalog      = "Catalog"
	CmdDeviceStatus = "DeviceStatus"
	CmdDeviceInfo   = "DeviceInfo"
)

// Keepalive is a Notify sent periodically by a device.
type Keepalive struct {
	XMLName  xml.Name `xml:"Notify"`
	CmdType  string   `xml:"CmdType"`
	SN       uint32   `xml:"SN"`
	DeviceID string   `xml:"DeviceID"`
	Status   string   `xml:"Status"`
}

// Catalog is a device's Response to a Catalog query.
type Catalog struct {
	XMLName    xml.Name   `xml:"Response"`
	CmdType    string     `xml:"CmdType"`
	SN         uint32     `xml:"SN"`
	DeviceID   string     `xml:"DeviceID"`
	SumNum     uint32     `xml:"SumNum"`
	DeviceList DeviceList `xml:"DeviceList"`
}

type DeviceList struct {
	Num   uint32        `xml:"Num,attr,omitempty"`
	Items []CatalogItem `xml:"Item"`
}

// CatalogItem is one channel in a catalog.
type CatalogItem struct {
	DeviceID     string `xml:"DeviceID"`
	Name         string `xml:"Name"`
	Manufacturer string `xml:"Manufacturer"`
	Model        string `xml:"Model"`
	Owner        string `xml:"Owner"`
	CivilCode    string `xml:"CivilCode"`
	Address      string `xml:"Address"`
	Parental     uint32 `xml:"Parental"`
	ParentID     string `xml:"ParentID"`
	RegisterWay  uint32 `xml:"RegisterWay"`
	Secrecy      uint32 `xml:"Secrecy"`
	Status       string `xml:"Status,omitempty"`
}

// DeviceStatus is a device's Response to a DeviceStatus query.
type DeviceStatus struct {
	XMLName  xml.Name `xml:"Response"`
	CmdType  string   `xml:"CmdType"`
	SN       uint32   `xml:"SN"`
	DeviceID string   `xml:"DeviceID"`
	Result   string   `xml:"Result"`
	Online   string   `xml:"Online,omitempty"`
	Status   string   `xml:"Status,omitempty"`
}

// DeviceInfo is a device's Response to a DeviceInfo query.
type DeviceInfo struct {
	XMLName      xml.Name `xml:"Response"`
	CmdType      string   `xml:"CmdType"`
	SN           uint32   `xml:"SN"`
	DeviceID     string   `xml:"DeviceID"`
	DeviceName   string   `xml:"DeviceName"`
	Manufacturer string   `xml:"Manufacturer"`
	Model        string   `xml:"Model"`
	Firmware     string   `xml:"Firmware"`
	Result       string   `xml:"Result"`
}

// Query is the gateway-originated query body, shared by all CmdTypes.
type Query struct {
	XMLName  xml.Name `xml:"Query"`
	CmdType  string   `xml:"CmdType"`
	SN       uint32   `xml:"SN"`
	DeviceID string   `xml:"DeviceID"`
}

func NewCatalogQuery(sn uint32, gbCode string) *Query {
	return &Query{CmdType: CmdCatalog, SN: sn, DeviceID: gbCode}
}

func NewDeviceStatusQuery(sn uint32, gbCode string) *Query {
	return &Query{CmdType: CmdDeviceStatus, SN: sn, DeviceID: gbCode}
}

func NewDeviceInfoQuery(sn uint32, gbCode string) *Query {
	return &Query{CmdType: CmdDeviceInfo, SN: sn, DeviceID: gbCode}
}

const xmlProlog = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"

// Marshal renders v with the UTF-8 prolog devices expect. The result still
// needs EncodeBody before it goes on the wire.
func Marshal(v any) (string, error) {
	data, err := xml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal manscdp: %w", err)
	}
	return xmlProlog + string(data), nil
}

// Unmarshal parses a decoded (UTF-8) body into v.
func Unmarshal(body string, v any) error {
	if err := xml.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("unmarshal manscdp: %w", err)
	}
	return nil
}
