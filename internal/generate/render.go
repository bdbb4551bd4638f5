package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/superpose/internal/manifest"
	"github.com/mmr-tortoise/superpose/internal/model"
	"github.com/mmr-tortoise/superpose/internal/ports"
)

// Generated artifact names inside the output directory.
const (
	devcontainerFileName = "devcontainer.json"
	composeFileName      = "compose.yaml"
	envFileName          = ".env"
)

// renderedFile is one output file held in memory until the write phase.
type renderedFile struct {
	Path string
	Data []byte
	Mode fs.FileMode
}

// generatedHeader warns readers away from hand-editing. It carries no
// timestamp so an unchanged regeneration is byte-identical.
func generatedHeader(comment string) string {
	return comment + " Generated by superpose. DO NOT EDIT.\n" +
		comment + " Edit the custom directory and run `superpose regen` instead.\n"
}

// renderTree renders the merged configuration and the stamped manifest into
// the ordered file list the write phase persists. Aux files come first so a
// fragment can never shadow a generated artifact.
func renderTree(merged *model.MergedConfig, m *model.Manifest) ([]renderedFile, error) {
	files := make([]renderedFile, 0, len(merged.AuxFiles)+4)

	for _, aux := range merged.AuxFiles {
		files = append(files, renderedFile{Path: aux.Path, Data: aux.Data, Mode: aux.Mode})
	}

	devData, err := renderDevcontainer(merged.Devcontainer)
	if err != nil {
		return nil, err
	}
	files = append(files, renderedFile{Path: devcontainerFileName, Data: devData})

	if len(merged.Compose) > 0 {
		composeData, err := renderCompose(merged.Compose)
		if err != nil {
			return nil, err
		}
		files = append(files, renderedFile{Path: composeFileName, Data: composeData})
	}

	if len(merged.Env) > 0 {
		files = append(files, renderedFile{Path: envFileName, Data: renderEnv(merged.Env)})
	}

	manifestData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	files = append(files, renderedFile{Path: manifest.FileName, Data: append(manifestData, '\n')})

	return files, nil
}

// renderDevcontainer serializes the merged devcontainer document. Map keys
// are sorted by the JSON encoder, so equal trees render to equal bytes.
func renderDevcontainer(doc map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize devcontainer config: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(generatedHeader("//"))
	buf.Write(data)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// renderCompose serializes the merged compose document with 2-space
// indentation.
func renderCompose(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(generatedHeader("#"))
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to serialize compose file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to serialize compose file: %w", err)
	}
	return buf.Bytes(), nil
}

// renderEnv writes the merged environment in fragment order, one comment
// block per contributing fragment.
func renderEnv(entries []model.EnvEntry) []byte {
	var buf bytes.Buffer
	buf.WriteString(generatedHeader("#"))
	lastSource := ""
	for _, e := range entries {
		if e.Source != lastSource {
			buf.WriteByte('\n')
			fmt.Fprintf(&buf, "# %s\n", e.Source)
			lastSource = e.Source
		}
		fmt.Fprintf(&buf, "%s=%s\n", e.Key, e.Value)
	}
	return buf.Bytes()
}

// injectForwardPorts appends each allocated actual port to forwardPorts and
// records its label under portsAttributes. Ports the template already
// forwards are left untouched.
func injectForwardPorts(doc map[string]any, allocated []model.NormalizedPort) {
	if len(allocated) == 0 {
		return
	}

	var forward []any
	seen := make(map[int64]bool)
	if existing, ok := doc["forwardPorts"].([]any); ok {
		forward = existing
		for _, v := range existing {
			if n, ok := asInt(v); ok {
				seen[n] = true
			}
		}
	}
	for _, p := range allocated {
		n := int64(p.ActualPort)
		if seen[n] {
			continue
		}
		seen[n] = true
		forward = append(forward, n)
	}
	doc["forwardPorts"] = forward

	attrs, ok := doc["portsAttributes"].(map[string]any)
	if !ok {
		attrs = map[string]any{}
	}
	for _, p := range allocated {
		key := strconv.Itoa(p.ActualPort)
		attr, ok := attrs[key].(map[string]any)
		if !ok {
			attr = map[string]any{}
		}
		if p.Label != "" {
			attr["label"] = p.Label
		}
		if p.Protocol == "http" || p.Protocol == "https" {
			attr["protocol"] = p.Protocol
		}
		if len(attr) > 0 {
			attrs[key] = attr
		}
	}
	if len(attrs) > 0 {
		doc["portsAttributes"] = attrs
	}
}

// rewriteComposePorts updates each owning service's published host ports to
// the allocated actual ports. Container-side ports are never renumbered. A
// declared port with no matching compose entry gets an "actual:declared"
// mapping appended.
func rewriteComposePorts(doc map[string]any, allocated []model.NormalizedPort) {
	if len(doc) == 0 || len(allocated) == 0 {
		return
	}
	services, ok := doc["services"].(map[string]any)
	if !ok {
		return
	}
	for _, p := range allocated {
		svc, ok := services[p.ServiceName].(map[string]any)
		if !ok {
			continue
		}
		list, _ := svc["ports"].([]any)
		matched := false
		for i, entry := range list {
			switch e := entry.(type) {
			case string:
				if rewritten, ok := rewriteShortSyntax(e, p.DeclaredPort, p.ActualPort); ok {
					list[i] = rewritten
					matched = true
				}
			case map[string]any:
				if target, ok := asInt(e["target"]); ok && target == int64(p.DeclaredPort) {
					matched = true
					if published, ok := asInt(e["published"]); !ok || published == int64(p.DeclaredPort) {
						e["published"] = int64(p.ActualPort)
					}
				}
			}
		}
		if !matched {
			mapping := fmt.Sprintf("%d:%d", p.ActualPort, p.DeclaredPort)
			if ports.Transport(p.Protocol) == "udp" {
				mapping += "/udp"
			}
			list = append(list, mapping)
		}
		svc["ports"] = list
	}
}

// rewriteShortSyntax rewrites the host side of a short-syntax mapping whose
// container port matches declared. Supported shapes: "container",
// "host:container", "ip:host:container", each with an optional "/protocol"
// suffix. A host port that already diverges from the conventional declared
// value (a custom mapping) is left alone but still counts as a match so no
// extra mapping is appended for it.
func rewriteShortSyntax(entry string, declared, actual int) (string, bool) {
	spec, proto, hasProto := strings.Cut(entry, "/")
	parts := strings.Split(spec, ":")
	container, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || container != declared {
		return "", false
	}

	switch len(parts) {
	case 1:
		spec = fmt.Sprintf("%d:%d", actual, declared)
	case 2, 3:
		host, err := strconv.Atoi(parts[len(parts)-2])
		if err != nil || host != declared {
			return entry, true
		}
		if len(parts) == 3 {
			spec = fmt.Sprintf("%s:%d:%d", parts[0], actual, declared)
		} else {
			spec = fmt.Sprintf("%d:%d", actual, declared)
		}
	default:
		return "", false
	}
	if hasProto {
		spec += "/" + proto
	}
	return spec, true
}

// expandEnvOptions substitutes ${option.<key>} placeholders in env values
// using the owning fragment's options. Unknown placeholders pass through
// unchanged so genuinely dynamic values survive.
func expandEnvOptions(entries []model.EnvEntry, fragments []model.OverlayFragment) {
	options := make(map[string]map[string]string, len(fragments))
	for i := range fragments {
		if len(fragments[i].Options) > 0 {
			options[fragments[i].ID] = fragments[i].Options
		}
	}
	for i := range entries {
		opts := options[entries[i].Source]
		if len(opts) == 0 || !strings.Contains(entries[i].Value, "${option.") {
			continue
		}
		pairs := make([]string, 0, len(opts)*2)
		for k, v := range opts {
			pairs = append(pairs, "${option."+k+"}", v)
		}
		entries[i].Value = strings.NewReplacer(pairs...).Replace(entries[i].Value)
	}
}

// asInt widens the numeric shapes the generic trees produce.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
