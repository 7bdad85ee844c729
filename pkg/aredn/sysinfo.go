// Package aredn decodes the sysinfo.json status document served by AREDN
// firmware. Field shapes vary across firmware generations (numbers arrive as
// strings, sections appear and disappear), so decoding is permissive and a
// separate semantic pass rejects documents that cannot identify a node.
package aredn

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LinkType classifies how two nodes are connected.
type LinkType string

const (
	LinkTypeRF      LinkType = "RF"
	LinkTypeDTD     LinkType = "DTD"
	LinkTypeTunnel  LinkType = "TUN"
	LinkTypeUnknown LinkType = "UNKNOWN"
)

// ParseLinkType maps the firmware's linkType string to a LinkType.
func ParseLinkType(s string) LinkType {
	switch strings.ToUpper(s) {
	case "RF":
		return LinkTypeRF
	case "DTD":
		return LinkTypeDTD
	case "TUN":
		return LinkTypeTunnel
	default:
		return LinkTypeUnknown
	}
}

// LinkInfo is one link as reported by a node's own status endpoint. It
// carries richer radio metrics than the OLSR cost-only view.
type LinkInfo struct {
	Source              string
	SourceIP            string
	Destination         string
	DestinationIP       string
	Type                LinkType
	Interface           string
	Signal              float64
	Noise               float64
	LinkQuality         float64
	NeighborLinkQuality float64
	TxRate              float64
	RxRate              float64
	// OlsrCost is nil when neither the firmware nor the OLSR export
	// provided a cost for this link.
	OlsrCost *float64
}

// SystemInfo is the decoded status of one node.
type SystemInfo struct {
	NodeName        string
	WlanIP          string
	WlanMAC         string
	Description     string
	Model           string
	BoardID         string
	FirmwareVersion string
	FirmwareMfg     string
	APIVersion      string
	Latitude        *float64
	Longitude       *float64
	GridSquare      string
	SSID            string
	Channel         string
	ChannelBW       string
	UpTime          string
	LoadAverages    []float64
	LinkCount       int
	Links           []LinkInfo
}

func (s *SystemInfo) String() string {
	return fmt.Sprintf("%s (%s)", s.NodeName, s.WlanIP)
}

// APIVersionTuple returns the dotted api_version as (major, minor).
// Unparseable components are zero.
func (s *SystemInfo) APIVersionTuple() (major, minor int) {
	parts := strings.SplitN(s.APIVersion, ".", 3)
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major, minor
}

// APIVersionBefore reports whether the node's API version is older than
// major.minor.
func (s *SystemInfo) APIVersionBefore(major, minor int) bool {
	gotMajor, gotMinor := s.APIVersionTuple()
	if gotMajor != major {
		return gotMajor < major
	}
	return gotMinor < minor
}

// flexFloat accepts a JSON number or a numeric string. An empty or missing
// value decodes as unset.
type flexFloat struct {
	value *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
	}
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q", s)
	}
	f.value = &v
	return nil
}

// flexString accepts a JSON string or number and stores its text form.
type flexString struct {
	value string
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		f.value = unquoted
		return nil
	}
	f.value = s
	return nil
}

type sysinfoJSON struct {
	Node        string `json:"node"`
	Description string `json:"description"`
	APIVersion  string `json:"api_version"`
	NodeDetails struct {
		Description     string `json:"description"`
		Model           string `json:"model"`
		BoardID         string `json:"board_id"`
		FirmwareMfg     string `json:"firmware_mfg"`
		FirmwareVersion string `json:"firmware_version"`
	} `json:"node_details"`
	System struct {
		Uptime string    `json:"uptime"`
		Loads  []float64 `json:"loads"`
	} `json:"sysinfo"`
	Interfaces []struct {
		Name string `json:"name"`
		MAC  string `json:"mac"`
		IP   string `json:"ip"`
	} `json:"interfaces"`
	MeshRF struct {
		SSID      string     `json:"ssid"`
		Channel   flexString `json:"channel"`
		ChannelBW flexString `json:"chanbw"`
	} `json:"meshrf"`
	Latitude   flexFloat `json:"lat"`
	Longitude  flexFloat `json:"lon"`
	GridSquare string    `json:"grid_square"`
	LinkInfo   map[string]struct {
		Hostname            string     `json:"hostname"`
		LinkType            string     `json:"linkType"`
		Interface           string     `json:"olsrInterface"`
		Signal              flexFloat  `json:"signal"`
		Noise               flexFloat  `json:"noise"`
		LinkQuality         flexFloat  `json:"linkQuality"`
		NeighborLinkQuality flexFloat  `json:"neighborLinkQuality"`
		TxRate              flexFloat  `json:"tx_rate"`
		RxRate              flexFloat  `json:"rx_rate"`
		LinkCost            *flexFloat `json:"linkCost"`
	} `json:"link_info"`
}

// ParseSystemInfo decodes a sysinfo.json document. Callers should verify the
// body is well-formed JSON first (json.Valid); any error returned here means
// the document was JSON but did not describe a usable node.
func ParseSystemInfo(data []byte) (*SystemInfo, error) {
	var raw sysinfoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if raw.Node == "" {
		return nil, fmt.Errorf("missing node name")
	}

	info := &SystemInfo{
		NodeName:        raw.Node,
		Description:     raw.Description,
		APIVersion:      raw.APIVersion,
		Model:           raw.NodeDetails.Model,
		BoardID:         raw.NodeDetails.BoardID,
		FirmwareVersion: raw.NodeDetails.FirmwareVersion,
		FirmwareMfg:     raw.NodeDetails.FirmwareMfg,
		Latitude:        raw.Latitude.value,
		Longitude:       raw.Longitude.value,
		GridSquare:      raw.GridSquare,
		SSID:            raw.MeshRF.SSID,
		Channel:         raw.MeshRF.Channel.value,
		ChannelBW:       raw.MeshRF.ChannelBW.value,
		UpTime:          raw.System.Uptime,
		LoadAverages:    raw.System.Loads,
	}
	if info.Description == "" {
		info.Description = raw.NodeDetails.Description
	}

	ip, mac, err := wlanInterface(raw)
	if err != nil {
		return nil, err
	}
	info.WlanIP = ip
	info.WlanMAC = mac

	for destIP, entry := range raw.LinkInfo {
		link := LinkInfo{
			Source:        info.NodeName,
			SourceIP:      info.WlanIP,
			Destination:   StripMeshDomain(entry.Hostname),
			DestinationIP: destIP,
			Type:          ParseLinkType(entry.LinkType),
			Interface:     entry.Interface,
		}
		if v := entry.Signal.value; v != nil {
			link.Signal = *v
		}
		if v := entry.Noise.value; v != nil {
			link.Noise = *v
		}
		if v := entry.LinkQuality.value; v != nil {
			link.LinkQuality = *v
		}
		if v := entry.NeighborLinkQuality.value; v != nil {
			link.NeighborLinkQuality = *v
		}
		if v := entry.TxRate.value; v != nil {
			link.TxRate = *v
		}
		if v := entry.RxRate.value; v != nil {
			link.RxRate = *v
		}
		if entry.LinkCost != nil && entry.LinkCost.value != nil {
			link.OlsrCost = entry.LinkCost.value
		}
		info.Links = append(info.Links, link)
	}
	info.LinkCount = len(info.Links)

	return info, nil
}

// wlanInterface picks the mesh radio interface. Firmware lists the radio as
// wlan0 or wlan1; older builds use a VLAN on eth0, so any interface carrying
// both an IP and MAC is the last resort.
func wlanInterface(raw sysinfoJSON) (ip, mac string, err error) {
	for _, name := range []string{"wlan0", "wlan1"} {
		for _, iface := range raw.Interfaces {
			if iface.Name == name && iface.IP != "" && iface.MAC != "" {
				return iface.IP, strings.ToLower(iface.MAC), nil
			}
		}
	}
	for _, iface := range raw.Interfaces {
		if iface.IP != "" && iface.MAC != "" {
			return iface.IP, strings.ToLower(iface.MAC), nil
		}
	}
	return "", "", fmt.Errorf("no interface with both IP and MAC address")
}

// StripMeshDomain removes the mesh DNS suffix from a reported hostname.
func StripMeshDomain(hostname string) string {
	lower := strings.ToLower(hostname)
	for _, suffix := range []string{".local.mesh", ".local"} {
		if strings.HasSuffix(lower, suffix) {
			return hostname[:len(hostname)-len(suffix)]
		}
	}
	return hostname
}
