// Package flagx helps several independent flag sets share one os.Args
// without tripping over each other's unknown flags.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs keeps only the flags listed in known (with their values) and
// drops everything else. Both "-f value" and "-f=value" forms are recognized.
// A token starting with "-" is never consumed as a value.
func FilterArgs(args []string, known []string) []string {
	set := make(map[string]struct{}, len(known))
	for _, f := range known {
		set[f] = struct{}{}
	}

	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, found := strings.Cut(arg, "="); found && strings.HasPrefix(arg, "-") {
			if _, ok := set[name]; ok {
				out = append(out, arg)
			}
			continue
		}

		if _, ok := set[arg]; !ok {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}

	return out
}

// ConfigFileFlag returns the path given with -c or -config, or "" if neither
// is present in args.
func ConfigFileFlag(args []string) string {
	var path string

	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
