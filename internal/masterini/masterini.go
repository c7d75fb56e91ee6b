// Package masterini persists the binlog router's cached master coordinates
// to master.ini, the same "ini file with one [section]" shape the original
// server writes beside the binlog directory (§6).
package masterini

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const section = "binlog_configuration"

// Config is the set of key/value pairs persisted across restarts so a
// router can resume dumping from its cached master without re-running the
// registration dialogue (§4.3, §6).
type Config struct {
	MasterHost       string
	MasterPort       int
	MasterUser       string
	MasterPassword   string // stored obfuscated at rest would be a server concern; kept plain here
	MasterLogFile    string
	MasterLogPos     uint32
	MasterServerID   uint32
	MariadbGTID      string // empty when not using GTID-based connect
	Filestem         string
}

func (c Config) asMap() map[string]string {
	return map[string]string{
		"master_host":     c.MasterHost,
		"master_port":     strconv.Itoa(c.MasterPort),
		"master_user":     c.MasterUser,
		"master_password": c.MasterPassword,
		"master_log_file": c.MasterLogFile,
		"master_log_pos":  strconv.FormatUint(uint64(c.MasterLogPos), 10),
		"master_server_id": strconv.FormatUint(uint64(c.MasterServerID), 10),
		"mariadb10_gtid":  c.MariadbGTID,
		"filestem":        c.Filestem,
	}
}

// Load reads master.ini from path. A missing file is not an error; it
// returns a zero Config so a fresh router falls through to its static
// configuration (§4.3 step 1).
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	values := make(map[string]string)
	inSection := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inSection = strings.EqualFold(strings.Trim(line, "[]"), section)
			continue
		}
		if !inSection {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return Config{}, err
	}

	port, _ := strconv.Atoi(values["master_port"])
	pos, _ := strconv.ParseUint(values["master_log_pos"], 10, 32)
	serverID, _ := strconv.ParseUint(values["master_server_id"], 10, 32)
	return Config{
		MasterHost:     values["master_host"],
		MasterPort:     port,
		MasterUser:     values["master_user"],
		MasterPassword: values["master_password"],
		MasterLogFile:  values["master_log_file"],
		MasterLogPos:   uint32(pos),
		MasterServerID: uint32(serverID),
		MariadbGTID:    values["mariadb10_gtid"],
		Filestem:       values["filestem"],
	}, nil
}

// Save writes cfg to path atomically: write to path+".tmp" then rename over
// the target, so a crash mid-write never leaves a truncated master.ini
// (§6). File mode is 0600 since master_password lives in this file.
func Save(path string, cfg Config) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	values := cfg.asMap()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "[%s]\n", section)
	for _, k := range keys {
		if values[k] == "" {
			continue
		}
		fmt.Fprintf(w, "%s=%s\n", k, values[k])
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// CachePath returns the path of a cached master response blob under
// binlogdir/cache/<tag> (§4.3 registration dialogue caching).
func CachePath(binlogDir, tag string) string {
	return filepath.Join(binlogDir, "cache", tag)
}
