package http

import (
	"net/http"
	"os"
	"path/filepath"
)

// ServeLicensePage serves the license activation page
func ServeLicensePage(webDir string) http.HandlerFunc {
	return servePage(webDir, "license.html", "License page not found")
}

// ServeMainApp serves the main application page
func ServeMainApp(webDir string) http.HandlerFunc {
	return servePage(webDir, "index.html", "Main application page not found")
}

// StaticFiles serves webDir/static under /static/.
func StaticFiles(webDir string) http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.Dir(filepath.Join(webDir, "static"))))
}

func servePage(webDir, name, missing string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(webDir, name)
		if _, err := os.Stat(path); err != nil {
			http.Error(w, missing, http.StatusNotFound)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, path)
	}
}
