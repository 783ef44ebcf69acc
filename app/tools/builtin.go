package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Builtins returns the default tool set in the order it is registered.
// web_search and get_weather are placeholders that return synthetic text.
func Builtins(sandbox *Sandbox) []Tool {
	return []Tool{
		{
			Name:        web_search,
			Description: `Search the web for information. Parameters: {"query": string}`,
			Parameters:  objectParams([]string{"query"}, map[string]any{"query": stringParam("What to search for.")}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[QueryAction](p, web_search, func(a QueryAction) (string, error) {
					return fmt.Sprintf("Search results for '%s': [This is a simulated search result. A real search provider can be plugged in here.]", a.Query), nil
				})
			}),
		},
		{
			Name:        calculator,
			Description: `Perform mathematical calculations with + - * / ^ and parentheses. Parameters: {"expression": string}`,
			Parameters:  objectParams([]string{"expression"}, map[string]any{"expression": stringParam("Arithmetic expression, e.g. 2 + 2 * 3.")}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[CalculatorAction](p, calculator, calculate)
			}),
		},
		{
			Name:        get_current_time,
			Description: "Get the current date and time. No parameters.",
			Handler: HandlerFunc(func(context.Context, map[string]any) (any, error) {
				return "Current date and time: " + time.Now().Format("2006-01-02 15:04:05"), nil
			}),
		},
		{
			Name:        get_weather,
			Description: `Get weather information for a location. Parameters: {"location": string}`,
			Parameters:  objectParams([]string{"location"}, map[string]any{"location": stringParam("City or place name.")}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[LocationAction](p, get_weather, func(a LocationAction) (string, error) {
					return fmt.Sprintf("Weather in %s: [This is simulated weather data. A real weather provider can be plugged in here.]", a.Location), nil
				})
			}),
		},
		{
			Name:        read_file,
			Description: `Read contents of a file in the workspace (first 1000 characters). Parameters: {"filename": string}`,
			Parameters:  objectParams([]string{"filename"}, map[string]any{"filename": stringParam("Path relative to the workspace.")}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[FileAction](p, read_file, func(a FileAction) (string, error) {
					return sandbox.readFile(a.Filename)
				})
			}),
		},
		{
			Name:        write_file,
			Description: `Write content to a file in the workspace, replacing it. Parameters: {"filename": string, "content": string}`,
			Parameters: objectParams([]string{"filename", "content"}, map[string]any{
				"filename": stringParam("Path relative to the workspace."),
				"content":  stringParam("The content to write into the file."),
			}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[FileAction](p, write_file, func(a FileAction) (string, error) {
					return sandbox.writeFile(a.Filename, a.Content)
				})
			}),
		},
		{
			Name:        get_system_info,
			Description: "Get host system information (platform, cpu count, memory). No parameters.",
			Handler:     HandlerFunc(systemInfo),
		},
	}
}

type SystemInfo struct {
	Platform        string `json:"platform"`
	PlatformRelease string `json:"platform_release"`
	PlatformVersion string `json:"platform_version"`
	Architecture    string `json:"architecture"`
	CPUCount        int    `json:"cpu_count"`
	MemoryTotal     string `json:"memory_total"`
	MemoryAvailable string `json:"memory_available"`
}

func systemInfo(ctx context.Context, _ map[string]any) (any, error) {
	info := SystemInfo{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCount:     runtime.NumCPU(),
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.PlatformRelease = h.KernelVersion
		info.PlatformVersion = h.PlatformVersion
		if h.KernelArch != "" {
			info.Architecture = h.KernelArch
		}
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.CPUCount = n
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read memory stats: %w", err)
	}
	info.MemoryTotal = formatGB(vm.Total)
	info.MemoryAvailable = formatGB(vm.Available)

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

func formatGB(b uint64) string {
	return fmt.Sprintf("%.2f GB", float64(b)/(1<<30))
}

// Preset returns the optional tool group registered on top of the builtins.
func Preset(name string, sandbox *Sandbox) ([]Tool, error) {
	switch name {
	case PresetDefault, "":
		return nil, nil
	case PresetFileOpsExtended:
		return fileTools(sandbox), nil
	case PresetScraper:
		return newScraper(sandbox).tools(), nil
	case PresetCommands:
		return newCommandRunner(sandbox).tools(), nil
	default:
		return nil, fmt.Errorf("unknown tools preset: %s", name)
	}
}

func fileTools(sandbox *Sandbox) []Tool {
	return []Tool{
		{
			Name:        list_files,
			Description: `Generate a tree listing of files in a workspace directory. Parameters: {"directory": string}`,
			Parameters:  objectParams(nil, map[string]any{"directory": stringParam("Directory relative to the workspace, empty for the root.")}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[DirectoryAction](p, list_files, func(a DirectoryAction) (string, error) {
					return sandbox.listFiles(a.Directory)
				})
			}),
		},
		{
			Name:        append_file,
			Description: `Append content to a file, creating it if needed. Parameters: {"filename": string, "content": string}`,
			Parameters: objectParams([]string{"filename", "content"}, map[string]any{
				"filename": stringParam("The file to append content to."),
				"content":  stringParam("The content to be appended at the end of the file."),
			}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[FileAction](p, append_file, func(a FileAction) (string, error) {
					return sandbox.appendFile(a.Filename, a.Content)
				})
			}),
		},
		{
			Name:        search_file,
			Description: `Search for a regex in a file or directory. Parameters: {"path": string, "pattern": string, "recursive": bool}`,
			Parameters: objectParams([]string{"path", "pattern"}, map[string]any{
				"path":      stringParam("The file or directory path where to search."),
				"pattern":   stringParam("The pattern (plaintext or regex) to look for."),
				"recursive": map[string]any{"type": "boolean", "description": "Search subdirectories too."},
			}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[SearchAction](p, search_file, func(a SearchAction) (string, error) {
					return sandbox.search(a.Path, a.Pattern, a.Recursive)
				})
			}),
		},
		{
			Name:        create_directory,
			Description: `Create a directory (and parents) in the workspace. Parameters: {"directory": string}`,
			Parameters:  objectParams([]string{"directory"}, map[string]any{"directory": stringParam("The directory to create.")}),
			Handler: HandlerFunc(func(_ context.Context, p map[string]any) (any, error) {
				return withParsed[DirectoryAction](p, create_directory, func(a DirectoryAction) (string, error) {
					return sandbox.createDirectory(a.Directory)
				})
			}),
		},
	}
}
