package datastore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/internal/config"
	"github.com/spf13/afero"
)

const (
	sourceDir      = "source"
	judgingDir     = "judging"
	compileOutput  = "compile"
	checkerExeName = "check"
)

// StorageManager resolves and manipulates the on-disk layout of submissions,
// testcases and checkers. Paths it returns are absolute, since they end up on
// the sandbox command line.
type StorageManager struct {
	fs afero.Fs

	submissionRoot string
	testcaseRoot   string
	checkerRoot    string
}

// NewManager returns a new manager instance
func NewManager(fsys afero.Fs, conf config.StorageConf) (*StorageManager, error) {
	m := &StorageManager{fs: fsys}
	var err error
	if m.submissionRoot, err = filepath.Abs(conf.SubmissionPath); err != nil {
		return nil, err
	}
	if m.testcaseRoot, err = filepath.Abs(conf.TestcasePath); err != nil {
		return nil, err
	}
	if m.checkerRoot, err = filepath.Abs(conf.CheckerPath); err != nil {
		return nil, err
	}
	for _, root := range []string{m.submissionRoot, m.testcaseRoot, m.checkerRoot} {
		if err := fsys.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("could not create storage root: %w", err)
		}
	}
	return m, nil
}

func (m *StorageManager) Fs() afero.Fs {
	return m.fs
}

func (m *StorageManager) SubmissionDir(subID int) string {
	return filepath.Join(m.submissionRoot, strconv.Itoa(subID))
}

// SourceDir is the value substituted for [PATH] in language commands.
func (m *StorageManager) SourceDir(subID int) string {
	return filepath.Join(m.SubmissionDir(subID), sourceDir)
}

func (m *StorageManager) SourcePath(subID int, lang *regrader.Language) string {
	return filepath.Join(m.SourceDir(subID), lang.SourceName)
}

func (m *StorageManager) ExecutablePath(subID int, lang *regrader.Language) string {
	return filepath.Join(m.SourceDir(subID), lang.ExeName)
}

func (m *StorageManager) CompileOutputPath(subID int) string {
	return filepath.Join(m.SourceDir(subID), compileOutput)
}

func (m *StorageManager) JudgingDir(subID, testcaseID int) string {
	return filepath.Join(m.SubmissionDir(subID), judgingDir, strconv.Itoa(testcaseID))
}

func (m *StorageManager) TestcasePath(problemID int, name string) string {
	return filepath.Join(m.testcaseRoot, strconv.Itoa(problemID), name)
}

func (m *StorageManager) CheckerDir(problemID int) string {
	return filepath.Join(m.checkerRoot, strconv.Itoa(problemID))
}

// CheckerExecPath is the compiled checker of a problem.
func (m *StorageManager) CheckerExecPath(problemID int) string {
	return filepath.Join(m.CheckerDir(problemID), checkerExeName)
}

// InitSubmission creates the submission directories and stores its source.
func (m *StorageManager) InitSubmission(subID int, lang *regrader.Language, src io.Reader) error {
	if err := m.fs.MkdirAll(m.SourceDir(subID), 0755); err != nil {
		return err
	}
	if err := m.fs.MkdirAll(filepath.Join(m.SubmissionDir(subID), judgingDir), 0777); err != nil {
		return err
	}
	return writeFile(m.fs, m.SourcePath(subID, lang), src, 0644)
}

func (m *StorageManager) ReadSource(subID int, lang *regrader.Language) ([]byte, error) {
	return afero.ReadFile(m.fs, m.SourcePath(subID, lang))
}

func (m *StorageManager) WriteCompileOutput(subID int, out []byte) error {
	return afero.WriteFile(m.fs, m.CompileOutputPath(subID), out, 0644)
}

func (m *StorageManager) CompileOutput(subID int) ([]byte, error) {
	return afero.ReadFile(m.fs, m.CompileOutputPath(subID))
}

// PrepareJudgingDir creates the scratch directory of a testcase run.
func (m *StorageManager) PrepareJudgingDir(subID, testcaseID int) (string, error) {
	dir := m.JudgingDir(subID, testcaseID)
	if err := m.fs.MkdirAll(dir, 0777); err != nil {
		return "", err
	}
	// MkdirAll is subject to umask, the sandboxed user still has to write here
	if err := m.fs.Chmod(dir, 0777); err != nil {
		return "", err
	}
	return dir, nil
}

// CleanJudgingDir removes everything produced while running one testcase.
func (m *StorageManager) CleanJudgingDir(subID, testcaseID int) error {
	return m.fs.RemoveAll(m.JudgingDir(subID, testcaseID))
}

func (m *StorageManager) RemoveExecutable(subID int, lang *regrader.Language) error {
	err := m.fs.Remove(m.ExecutablePath(subID, lang))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (m *StorageManager) SaveTestcase(problemID int, name string, r io.Reader) error {
	if err := m.fs.MkdirAll(filepath.Join(m.testcaseRoot, strconv.Itoa(problemID)), 0755); err != nil {
		return err
	}
	return writeFile(m.fs, m.TestcasePath(problemID, name), r, 0644)
}

func (m *StorageManager) SaveCheckerExec(problemID int, r io.Reader) error {
	if err := m.fs.MkdirAll(m.CheckerDir(problemID), 0755); err != nil {
		return err
	}
	return writeFile(m.fs, m.CheckerExecPath(problemID), r, 0755)
}

func (m *StorageManager) CheckerExists(problemID int) bool {
	ok, err := afero.Exists(m.fs, m.CheckerExecPath(problemID))
	return ok && err == nil
}

func writeFile(fsys afero.Fs, p string, r io.Reader, mode fs.FileMode) error {
	f, err := fsys.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
