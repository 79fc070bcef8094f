package service

import (
	"fmt"
	"strconv"

	"github.com/flexcan-go/flexcan/pkg/driver"
	"gopkg.in/ini.v1"
)

// LoadConfig reads a service configuration from an ini file :
//
//	[can]
//	baudrate = 500000
//	mode = normal            ; normal, loopback or listenonly
//	filter_id = 0x200
//	filter_mask = 0x7FF
//	filter_extended = false
//	filter_id2 = 0x700       ; optional secondary filter
//	filter_mask2 = 0x7FF
//
// Identifier values accept decimal or 0x prefixed hex.
func LoadConfig(path string) (Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return Config{}, err
	}
	section := file.Section("can")

	config := Config{
		Baudrate: uint32(section.Key("baudrate").MustUint(500_000)),
	}

	switch mode := section.Key("mode").MustString("normal"); mode {
	case "normal":
		config.Mode = driver.ModeNormal
	case "loopback":
		config.Mode = driver.ModeLoopback
	case "listenonly":
		config.Mode = driver.ModeListenOnly
	default:
		return Config{}, fmt.Errorf("unknown can mode : %v", mode)
	}

	if config.FilterID, err = parseID(section.Key("filter_id").MustString("0")); err != nil {
		return Config{}, err
	}
	if config.FilterMask, err = parseID(section.Key("filter_mask").MustString("0x1FFFFFFF")); err != nil {
		return Config{}, err
	}
	config.FilterExtended = section.Key("filter_extended").MustBool(false)
	if config.FilterID2, err = parseID(section.Key("filter_id2").MustString("0")); err != nil {
		return Config{}, err
	}
	if config.FilterMask2, err = parseID(section.Key("filter_mask2").MustString("0x1FFFFFFF")); err != nil {
		return Config{}, err
	}
	return config, nil
}

func parseID(value string) (uint32, error) {
	parsed, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad identifier %q : %v", value, err)
	}
	return uint32(parsed), nil
}
