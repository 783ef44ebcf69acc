package tools

type FileAction struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type DirectoryAction struct {
	Directory string `json:"directory"`
}

type SearchAction struct {
	Path      string `json:"path"`
	Pattern   string `json:"pattern"`
	Recursive bool   `json:"recursive"`
}

type ExtractAction struct {
	HTML     string `json:"html"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type QueryAction struct {
	Query string `json:"query"`
}

type LocationAction struct {
	Location string `json:"location"`
}
