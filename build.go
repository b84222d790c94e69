//go:build ignore

// build.go - WhatsApp Bot build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: build, release, test, clean

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts"
)

const (
	binaryName = "wabot"
	mainPkg    = "./cmd/wabot"
	distDir    = "dist"
)

// releaseTargets are the platforms shipped to customers.
var releaseTargets = []struct{ goos, goarch string }{
	{"windows", "amd64"},
	{"linux", "amd64"},
}

var (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
)

// BuildContext holds configuration for the build process
type BuildContext struct {
	Verbose bool
	Version string
	Commit  string
	Date    string
}

func main() {
	target := flag.String("target", "build", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	version := flag.String("version", contracts.Version, "Version stamped into the binary")
	flag.Parse()

	if runtime.GOOS == "windows" {
		colorReset, colorRed, colorGreen, colorBlue, colorCyan = "", "", "", "", ""
	}

	fmt.Println(colorCyan + "=== WhatsApp Bot - Build ===" + colorReset)

	ctx := &BuildContext{
		Verbose: *verbose,
		Version: *version,
		Commit:  gitCommit(),
		Date:    time.Now().UTC().Format(time.RFC3339),
	}

	start := time.Now()
	var err error
	switch *target {
	case "build":
		err = buildBinary(ctx, runtime.GOOS, runtime.GOARCH)
	case "release":
		err = buildRelease(ctx)
	case "test":
		err = run(ctx, "go", "test", "-race", "./...")
	case "clean":
		err = os.RemoveAll(distDir)
	default:
		fmt.Println("Targets: build, release, test, clean")
		os.Exit(1)
	}
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("%s completed in %s", *target, time.Since(start).Round(time.Millisecond)))
}

func buildBinary(ctx *BuildContext, goos, goarch string) error {
	name := binaryName
	if goos == "windows" {
		name += ".exe"
	}
	output := filepath.Join(distDir, goos+"-"+goarch, name)
	printInfo(fmt.Sprintf("Building %s for %s/%s...", name, goos, goarch))

	ldflags := fmt.Sprintf("-s -w -X main.version=%s -X main.commit=%s -X main.date=%s",
		ctx.Version, ctx.Commit, ctx.Date)

	cmd := exec.Command("go", "build", "-trimpath", "-ldflags", ldflags, "-o", output, mainPkg)
	cmd.Env = append(os.Environ(), "GOOS="+goos, "GOARCH="+goarch, "CGO_ENABLED=0")
	if err := runCmd(ctx, cmd); err != nil {
		return fmt.Errorf("build %s/%s: %w", goos, goarch, err)
	}

	if info, err := os.Stat(output); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", output, float64(info.Size())/1024/1024))
	}
	return nil
}

// buildRelease cross-compiles every release target and ships the web assets
// and example config next to each binary.
func buildRelease(ctx *BuildContext) error {
	if err := os.RemoveAll(distDir); err != nil {
		return err
	}
	for _, t := range releaseTargets {
		if err := buildBinary(ctx, t.goos, t.goarch); err != nil {
			return err
		}
		dir := filepath.Join(distDir, t.goos+"-"+t.goarch)
		if err := copyDir("web", filepath.Join(dir, "web")); err != nil {
			return fmt.Errorf("copy web assets: %w", err)
		}
		if err := copyFile(filepath.Join("configs", "config.example.yaml"), filepath.Join(dir, "config.yaml")); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("copy config: %w", err)
		}
	}
	return nil
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func run(ctx *BuildContext, name string, args ...string) error {
	return runCmd(ctx, exec.Command(name, args...))
}

func runCmd(ctx *BuildContext, cmd *exec.Cmd) error {
	if ctx.Verbose {
		fmt.Printf("Running: %s\n", strings.Join(cmd.Args, " "))
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dest string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}
