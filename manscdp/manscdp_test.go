package manscdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepaliveRoundTrip(t *testing.T) {
	in := Keepalive{
		CmdType:  CmdKeepalive,
		SN:       27,
		DeviceID: "34020000001320000001",
		Status:   "OK",
	}

	body, err := Marshal(&in)
	require.NoError(t, err)
	assert.Contains(t, body, "<Notify>")
	assert.Contains(t, body, "<CmdType>Keepalive</CmdType>")

	var out Keepalive
	require.NoError(t, Unmarshal(body, &out))
	assert.Equal(t, in.CmdType, out.CmdType)
	assert.Equal(t, in.SN, out.SN)
	assert.Equal(t, in.DeviceID, out.DeviceID)
	assert.Equal(t, in.Status, out.Status)
}

func TestCatalogRoundTrip(t *testing.T) {
	in := Catalog{
		CmdType:  CmdCatalog,
		SN:       3,
		DeviceID: "34020000001320000001",
		SumNum:   2,
		DeviceList: DeviceList{
			Num: 2,
			Items: []CatalogItem{
				{DeviceID: "34020000001320000002", Name: "Camera 01", Parental: 0, ParentID: "34020000001320000001", Status: "ON"},
				{DeviceID: "34020000001320000003", Name: "Camera 02", Status: "OFF"},
			},
		},
	}

	body, err := Marshal(&in)
	require.NoError(t, err)

	var out Catalog
	require.NoError(t, Unmarshal(body, &out))
	assert.Equal(t, in.SumNum, out.SumNum)
	require.Len(t, out.DeviceList.Items, 2)
	assert.Equal(t, "Camera 01", out.DeviceList.Items[0].Name)
	assert.Equal(t, "OFF", out.DeviceList.Items[1].Status)
}

func TestDeviceStatusRoundTrip(t *testing.T) {
	in := DeviceStatus{
		CmdType:  CmdDeviceStatus,
		SN:       9,
		DeviceID: "34020000001320000001",
		Result:   "OK",
		Online:   "ONLINE",
		Status:   "OK",
	}

	body, err := Marshal(&in)
	require.NoError(t, err)

	var out DeviceStatus
	require.NoError(t, Unmarshal(body, &out))
	assert.Equal(t, in.Result, out.Result)
	assert.Equal(t, in.Online, out.Online)
}

func TestQueryBody(t *testing.T) {
	body, err := Marshal(NewDeviceStatusQuery(5, "34020000001320000001"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(body, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Query>"))
	assert.Contains(t, body, "<CmdType>DeviceStatus</CmdType>")
	assert.Contains(t, body, "<SN>5</SN>")
	assert.Contains(t, body, "<DeviceID>34020000001320000001</DeviceID>")
}

func TestCmdType(t *testing.T) {
	assert.Equal(t, "Keepalive", CmdType("<Notify><CmdType>Keepalive</CmdType></Notify>"))
	assert.Equal(t, "", CmdType("<Notify></Notify>"))
}

func TestDecodeBodyPrologRewrite(t *testing.T) {
	raw := []byte("<?xml version=\"1.0\" encoding=\"GB2312\"?>\n<Notify><CmdType>Keepalive</CmdType></Notify>")

	body, err := DecodeBody(raw)
	require.NoError(t, err)
	assert.Contains(t, body, `encoding="UTF-8"`)
	assert.NotContains(t, body, `encoding="GB2312"`)
	assert.Equal(t, "Keepalive", CmdType(body))
}

func TestEncodeDecodeChinese(t *testing.T) {
	in := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Response><CmdType>Catalog</CmdType><Name>摄像机</Name></Response>"

	wire, err := EncodeBody(in)
	require.NoError(t, err)
	assert.Contains(t, string(wire), `encoding="GB2312"`)
	// Non-ASCII must actually be transcoded
	assert.NotContains(t, string(wire), "摄像机")

	back, err := DecodeBody(wire)
	require.NoError(t, err)
	assert.Equal(t, in, back)
}
