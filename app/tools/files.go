package tools

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/utils"
)

const readLimit = 1000

// Sandbox confines file tools to a single workspace directory.
type Sandbox struct {
	folder string

	once sync.Once
	root string
	err  error
}

func NewSandbox(folder string) *Sandbox {
	return &Sandbox{folder: folder}
}

func (s *Sandbox) Root() (string, error) {
	s.once.Do(func() {
		wf := strings.TrimSpace(s.folder)
		if wf == "" {
			s.err = errors.New("workspace folder not set")
			return
		}
		abs, err := filepath.Abs(wf)
		if err != nil {
			s.err = fmt.Errorf("cannot get absolute path of workspace: %w", err)
			return
		}
		info, err := os.Stat(abs)
		switch {
		case os.IsNotExist(err):
			if mkErr := os.MkdirAll(abs, 0o755); mkErr != nil {
				s.err = fmt.Errorf("cannot create workspace: %w", mkErr)
				return
			}
		case err != nil:
			s.err = fmt.Errorf("cannot stat workspace: %w", err)
			return
		case !info.IsDir():
			s.err = fmt.Errorf("workspace is not a directory: %s", abs)
			return
		}
		s.root = filepath.Clean(abs)
	})
	return s.root, s.err
}

// Join resolves path inside the sandbox and rejects anything that escapes it.
func (s *Sandbox) Join(path string) (string, error) {
	root, err := s.Root()
	if err != nil {
		return "", err
	}

	if path == "" || path == "." {
		return root, nil
	}

	p := filepath.Clean(path)
	if filepath.IsAbs(p) {
		if !withinRoot(root, p) {
			return "", fmt.Errorf("absolute path outside sandbox: %s", p)
		}
		return p, nil
	}

	base := filepath.Base(root)
	sep := string(os.PathSeparator)
	if p == base {
		return root, nil
	}
	p = strings.TrimPrefix(p, base+sep)

	candidate := filepath.Clean(filepath.Join(root, p))
	if !withinRoot(root, candidate) {
		return "", fmt.Errorf("path escapes sandbox: %s", path)
	}
	return candidate, nil
}

func (s *Sandbox) ensureInside(p string) error {
	root, err := s.Root()
	if err != nil {
		return err
	}
	if !withinRoot(root, p) {
		return fmt.Errorf("path escapes sandbox: %s", p)
	}
	return nil
}

func withinRoot(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func (s *Sandbox) writeFile(filename, content string) (string, error) {
	path, err := s.Join(filename)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	log.Info().Str("path", path).Msg("✅ File written")
	return "Successfully wrote to " + filename, nil
}

func (s *Sandbox) readFile(filename string) (string, error) {
	path, err := s.Join(filename)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	log.Info().Str("path", path).Msg("✅ File read")

	runes := []rune(string(content))
	if len(runes) > readLimit {
		return "File contents:\n" + string(runes[:readLimit]) + "...", nil
	}
	return "File contents:\n" + string(runes), nil
}

func (s *Sandbox) listFiles(dir string) (string, error) {
	path, err := s.Join(dir)
	if err != nil {
		return "", err
	}
	tree, err := utils.BuildTree(path, nil, nil)
	if err != nil {
		return "", err
	}
	log.Info().Str("path", path).Msg("✅ Directory listing generated")
	return tree, nil
}

func (s *Sandbox) appendFile(filename, content string) (string, error) {
	path, err := s.Join(filename)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err = f.WriteString(content); err != nil {
		return "", err
	}
	log.Info().Str("path", path).Msg("✅ Content appended")
	return "Successfully appended content to " + filename, nil
}

func (s *Sandbox) createDirectory(dir string) (string, error) {
	path, err := s.Join(dir)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	log.Info().Str("path", path).Msg("✅ Directory created")
	return "Successfully created directory " + dir, nil
}

func (s *Sandbox) search(pathParam, pattern string, recursive bool) (string, error) {
	absPath, err := s.Join(pathParam)
	if err != nil {
		return "", err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}
	stat, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("could not access path: %w", err)
	}

	var matches []string
	if !stat.IsDir() {
		if matches, err = s.searchFile(absPath, re); err != nil {
			return "", err
		}
	} else {
		err = filepath.WalkDir(absPath, func(p string, d os.DirEntry, walkErr error) error {
			if walkErr != nil || d.Type()&os.ModeSymlink != 0 {
				return nil
			}
			if d.IsDir() {
				if p != absPath && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			found, fe := s.searchFile(p, re)
			if fe == nil {
				matches = append(matches, found...)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	}

	if len(matches) == 0 {
		return "No matches found", nil
	}
	return strings.Join(matches, "\n"), nil
}

func (s *Sandbox) searchFile(path string, re *regexp.Regexp) ([]string, error) {
	if err := s.ensureInside(path); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	root, _ := s.Root()
	rel, _ := filepath.Rel(root, path)

	var matches []string
	scanner := bufio.NewScanner(file)
	lineNumber := 1
	for scanner.Scan() {
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, lineNumber, line))
		}
		lineNumber++
	}
	return matches, scanner.Err()
}
