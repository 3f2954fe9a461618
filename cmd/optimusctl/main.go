// Command optimusctl is the thin operator surface named in spec.md §6 —
// add-lang/remove-lang/list-langs/build-image/render-k8s live outside this
// repo's scope as external collaborators, so this binary only validates
// arguments and edits the local policy registry; it does not build images
// or render manifests itself. Grounded on the teacher's root-level CLI
// utilities (dockerkill.go, warmup.go): a plain os.Args switch, no flag
// parsing library.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"optimus/internal/langconfig"
)

const usage = `Usage: optimusctl <command> [args]

Commands:
  list-langs                      list configured language tags
  add-lang <tag> <policy.json>    add or replace a language policy
  remove-lang <tag>               remove a language policy
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	path := envOr("LANG_CONFIG_PATH", "config/languages.json")

	switch os.Args[1] {
	case "list-langs":
		os.Exit(listLangs(path))
	case "add-lang":
		if len(os.Args) != 4 {
			fmt.Print(usage)
			os.Exit(1)
		}
		os.Exit(addLang(path, os.Args[2], os.Args[3]))
	case "remove-lang":
		if len(os.Args) != 3 {
			fmt.Print(usage)
			os.Exit(1)
		}
		os.Exit(removeLang(path, os.Args[2]))
	case "build-image", "render-k8s":
		color.Yellow("%s is an external collaborator step per spec.md §6; not implemented by optimusctl", os.Args[1])
		os.Exit(2)
	default:
		fmt.Print(usage)
		os.Exit(1)
	}
}

func listLangs(path string) int {
	mgr, err := langconfig.Load(path)
	if err != nil {
		color.Red("failed to load %s: %v", path, err)
		return 1
	}
	for _, lang := range mgr.Languages() {
		policy, _ := mgr.Get(lang)
		fmt.Printf("%-12s image=%-30s compiled=%v\n", lang, policy.Image, policy.Compiled())
	}
	return 0
}

func addLang(registryPath, tag, policyPath string) int {
	raw, err := os.ReadFile(registryPath)
	if err != nil {
		color.Red("failed to read %s: %v", registryPath, err)
		return 1
	}
	registry := map[string]langconfig.Policy{}
	if err := json.Unmarshal(raw, &registry); err != nil {
		color.Red("failed to parse %s: %v", registryPath, err)
		return 1
	}

	policyRaw, err := os.ReadFile(policyPath)
	if err != nil {
		color.Red("failed to read %s: %v", policyPath, err)
		return 1
	}
	var policy langconfig.Policy
	if err := json.Unmarshal(policyRaw, &policy); err != nil {
		color.Red("failed to parse %s: %v", policyPath, err)
		return 1
	}

	registry[tag] = policy
	out, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		color.Red("failed to encode registry: %v", err)
		return 1
	}
	if err := os.WriteFile(registryPath, out, 0o644); err != nil {
		color.Red("failed to write %s: %v", registryPath, err)
		return 1
	}
	color.Green("added language %q to %s", tag, registryPath)
	return 0
}

func removeLang(registryPath, tag string) int {
	raw, err := os.ReadFile(registryPath)
	if err != nil {
		color.Red("failed to read %s: %v", registryPath, err)
		return 1
	}
	registry := map[string]langconfig.Policy{}
	if err := json.Unmarshal(raw, &registry); err != nil {
		color.Red("failed to parse %s: %v", registryPath, err)
		return 1
	}
	if _, ok := registry[tag]; !ok {
		color.Yellow("language %q not present in %s", tag, registryPath)
		return 2
	}
	delete(registry, tag)
	out, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		color.Red("failed to encode registry: %v", err)
		return 1
	}
	if err := os.WriteFile(registryPath, out, 0o644); err != nil {
		color.Red("failed to write %s: %v", registryPath, err)
		return 1
	}
	color.Green("removed language %q from %s", tag, registryPath)
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
