// Package report verifies a stage after it ran: it scans the stage log for
// severity markers and checks every declared location on disk.
package report

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/meshflow/internal/locations"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

// Severity markers looked for in stage logs.
const (
	markerWarning = "[warning]"
	markerError   = "[error]"
	markerFatal   = "[fatal]"
)

// Collector builds stage reports.
type Collector struct {
	logDir string
	logger *slog.Logger
}

// NewCollector creates a collector reading stage logs from logDir.
func NewCollector(logDir string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{logDir: logDir, logger: logger}
}

// Collect reports on one stage. Success is true only if every location
// check passed; log findings are informational.
func (c *Collector) Collect(spec core.StageSpec) core.StageReport {
	locs, ok := CheckLocations(spec)
	rep := core.StageReport{
		Success:         ok,
		LogReport:       c.scanLog(spec.ID),
		LocationsReport: locs,
	}
	c.logger.Debug("stage report collected",
		"stage", spec.ID,
		"success", rep.Success,
		"warnings", len(rep.LogReport.WarningLines),
		"errors", len(rep.LogReport.ErrorLines),
		"fatal", len(rep.LogReport.FatalLines))
	return rep
}

func (c *Collector) scanLog(id core.StageID) core.LogReport {
	path := locations.LogPath(c.logDir, id)
	f, err := os.Open(path) //nolint:gosec // path derived from configured log dir
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("failed to open stage log", "path", path, "error", err)
		}
		return core.LogReport{WarningLines: []string{}, ErrorLines: []string{}, FatalLines: []string{}}
	}
	defer func() { _ = f.Close() }()

	rep, err := ScanLog(f)
	if err != nil {
		c.logger.Warn("failed to read stage log", "path", path, "error", err)
	}
	return rep
}

// ScanLog classifies every line containing a severity marker. A line with
// several markers is listed under each of them. Lines are kept verbatim,
// line terminator included.
func ScanLog(r io.Reader) (core.LogReport, error) {
	rep := core.LogReport{
		LogFilePresent: true,
		WarningLines:   []string{},
		ErrorLines:     []string{},
		FatalLines:     []string{},
	}

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if strings.Contains(line, markerWarning) {
				rep.WarningLines = append(rep.WarningLines, line)
			}
			if strings.Contains(line, markerError) {
				rep.ErrorLines = append(rep.ErrorLines, line)
			}
			if strings.Contains(line, markerFatal) {
				rep.FatalLines = append(rep.FatalLines, line)
			}
		}
		if errors.Is(err, io.EOF) {
			return rep, nil
		}
		if err != nil {
			return rep, err
		}
	}
}

// CheckLocations verifies every declared location of spec, keyed by path.
// The camera connection stage additionally needs .bin files next to its
// ini file.
func CheckLocations(spec core.StageSpec) (map[string]core.LocationCheck, bool) {
	checks := make(map[string]core.LocationCheck, len(spec.Locations)+1)
	ok := true
	for _, l := range spec.Locations {
		check := CheckPath(l.Path)
		checks[l.Path] = check
		if check == core.LocationEmpty || check == core.LocationNoSuchPath {
			ok = false
		}
	}

	if spec.ID == core.StageCameraConnection {
		ini, found := spec.Location("ini")
		if found && hasBinFiles(filepath.Dir(ini)) {
			checks[core.BinFilesKey] = core.BinFilesFound
		} else {
			checks[core.BinFilesKey] = core.BinFilesMissing
			ok = false
		}
	}
	return checks, ok
}

// CheckPath classifies one path: a regular file is Found, a directory
// holding at least one file anywhere below it is Not empty, a directory
// without files is Empty, anything else is No such path.
func CheckPath(path string) core.LocationCheck {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return core.LocationNoSuchPath
	case info.Mode().IsRegular():
		return core.LocationFound
	case info.IsDir():
		if containsFile(path, func(string) bool { return true }) {
			return core.LocationNotEmpty
		}
		return core.LocationEmpty
	default:
		return core.LocationNoSuchPath
	}
}

func hasBinFiles(dir string) bool {
	return containsFile(dir, func(name string) bool {
		return filepath.Ext(name) == ".bin"
	})
}

// containsFile walks root and reports whether any non-directory entry
// matches. Unreadable subtrees are skipped.
func containsFile(root string, match func(name string) bool) bool {
	errFound := errors.New("found")
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && match(d.Name()) {
			return errFound
		}
		return nil
	})
	return errors.Is(err, errFound)
}
