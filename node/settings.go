package node

import (
	"os"
	"path/filepath"
	"time"

	"gitlab.com/shardnet/core/persist"
)

const settingsFile = "settings.json"

var settingsMetadata = persist.Metadata{Header: "Shard Core Node Settings", Version: "0.1.0"}

// Settings is the small set of farmer-side policy knobs a node persists
// across restarts, mirroring the teacher's HostInternalSettings.
type Settings struct {
	AcceptingContracts   bool          `json:"acceptingcontracts"`
	MinStoragePrice      uint64        `json:"minstorageprice"`
	MinDownloadPrice     uint64        `json:"mindownloadprice"`
	MinUploadPrice       uint64        `json:"minuploadprice"`
	MaxDuration          time.Duration `json:"maxduration"`
	MaxCapacity          uint64        `json:"maxcapacity"`
	DefaultAuditTTL       time.Duration `json:"defaultauditttl"`
}

// defaultSettings matches the teacher's conservative all-off defaults: a
// fresh node does not accept contracts until an operator opts in.
func defaultSettings() Settings {
	return Settings{
		AcceptingContracts: false,
		MinStoragePrice:    1,
		MinDownloadPrice:   1,
		MinUploadPrice:     1,
		MaxDuration:        30 * 24 * time.Hour,
		MaxCapacity:        0,
		DefaultAuditTTL:    time.Hour,
	}
}

func loadSettings(dir string) (Settings, error) {
	path := filepath.Join(dir, settingsFile)
	var s Settings
	err := persist.LoadJSON(settingsMetadata, &s, path)
	if os.IsNotExist(err) {
		s = defaultSettings()
		return s, saveSettings(dir, s)
	}
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}

func saveSettings(dir string, s Settings) error {
	return persist.SaveJSON(settingsMetadata, s, filepath.Join(dir, settingsFile))
}
