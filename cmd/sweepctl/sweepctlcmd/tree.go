package sweepctlcmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	mbp "go.livesweep.dev/core/mainboilerplate"
	"go.livesweep.dev/core/tree"
	"gopkg.in/yaml.v2"
)

type cmdTreeGet struct {
	Path   string `long:"path" short:"p" default:"/" description:"Path of the subtree to read"`
	Format string `long:"format" short:"o" choice:"yaml" choice:"json" default:"yaml" description:"Output format"`
}

type cmdTreePatch struct {
	PatchPath string `long:"patch" default:"-" description:"Input patch path. Use '-' for stdin"`
}

func init() {
	CommandRegistry.AddCommand("tree", "get", "Read the subtree at a path", `
Read the subtree at --path of the document, and print it as YAML or JSON.
Absent subtrees print as null.
`, &cmdTreeGet{})

	CommandRegistry.AddCommand("tree", "patch", "Apply a multi-path patch", `
Apply a patch read as YAML (or JSON) from --patch. The patch is a mapping
of document paths to the values to write at each, where null deletes.
Paths may not overlap. For example:

>    /games/ABCDE/state: lost
>    /games/ABCDE/players: null
`, &cmdTreePatch{})
}

func (cmd *cmdTreeGet) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	var snap, err = store.Read(ctx, cmd.Path)
	mbp.Must(err, "failed to read", "path", cmd.Path)

	return writeValue(os.Stdout, cmd.Format, snap.Val())
}

func (cmd *cmdTreePatch) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var b []byte
	var err error

	if cmd.PatchPath == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(cmd.PatchPath)
	}
	mbp.Must(err, "failed to read patch input")

	patch, err := decodePatch(b)
	if err != nil {
		// `yaml` produces nicely formatted error messages that are best printed as-is.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return errors.New("patch decode failed")
	}

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	mbp.Must(store.Patch(ctx, patch), "failed to apply patch")
	fmt.Printf("patched %d paths\n", len(patch))
	return nil
}

// decodePatch decodes a YAML (or JSON, which is YAML) patch.
func decodePatch(b []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	var out = make(map[string]interface{}, len(raw))
	for path, v := range raw {
		out[path] = fromYAML(v)
	}
	return out, nil
}

// fromYAML maps values decoded by yaml.v2, which decodes mappings as
// map[interface{}]interface{}, into tree values.
func fromYAML(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[interface{}]interface{}:
		var out = make(tree.Map, len(vv))
		for k, c := range vv {
			out[fmt.Sprint(k)] = fromYAML(c)
		}
		return tree.Normalize(out)
	case []interface{}:
		var out = make([]interface{}, len(vv))
		for i, c := range vv {
			out[i] = fromYAML(c)
		}
		return tree.Normalize(out)
	default:
		return tree.Normalize(vv)
	}
}

// writeValue writes tree value |v| in |format|.
func writeValue(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		var enc = json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		var b, err = yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
}
