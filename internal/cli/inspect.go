package cli

import (
	"fmt"
	"go/types"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/interpose/internal/gen"
)

var (
	inspectIfaces []string
	inspectDir    string
	inspectJSON   bool
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringSliceVarP(&inspectIfaces, "iface", "i", nil, "Additional interface to implement (repeatable)")
	inspectCmd.Flags().StringVarP(&inspectDir, "dir", "C", ".", "Directory to resolve the package from")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print JSON instead of a table")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <package> <Type>",
	Short: "Show the members a proxy of Type would intercept",
	Long:  "Prints the ordered member table of a proxy: index, depth, kind, name, signature and markers,\nfollowed by sealed methods and eligible constructors.",
	Args:  cobra.ExactArgs(2),
	RunE:  runInspect,
}

type memberRow struct {
	Index     int      `json:"index"`
	Depth     int      `json:"depth"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Signature string   `json:"signature"`
	Markers   []string `json:"markers,omitempty"`
}

type inspectReport struct {
	Type         string      `json:"type"`
	Proxy        string      `json:"proxy"`
	Members      []memberRow `json:"members"`
	Sealed       []string    `json:"sealed,omitempty"`
	Constructors []string    `json:"constructors"`
	Implemented  []string    `json:"implemented,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	pkg, err := gen.Load(inspectDir, args[0])
	if err != nil {
		return err
	}
	target, err := gen.Analyze(pkg.Types, args[1], inspectIfaces)
	if err != nil {
		return err
	}
	report := newReport(target)

	if inspectJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	return writeReport(cmd.OutOrStdout(), report)
}

func newReport(t *gen.Target) inspectReport {
	q := func(p *types.Package) string { return p.Name() }
	r := inspectReport{Type: t.Name + t.Params.Params(q), Proxy: t.Proxy, Sealed: t.Sealed}
	for _, m := range t.Members() {
		r.Members = append(r.Members, memberRow{
			Index:     m.Index,
			Depth:     m.Depth,
			Kind:      m.Kind.String(),
			Name:      m.Name,
			Signature: strings.TrimPrefix(types.TypeString(m.Sig, q), "func"),
			Markers:   m.Markers,
		})
	}
	for _, c := range t.Constructors {
		if c.Zero() {
			r.Constructors = append(r.Constructors, "new("+t.Name+")")
			continue
		}
		r.Constructors = append(r.Constructors, c.Name+strings.TrimPrefix(types.TypeString(c.Sig, q), "func"))
	}
	for _, it := range t.Implemented {
		r.Implemented = append(r.Implemented, types.TypeString(it, q))
	}
	return r
}

func writeReport(out io.Writer, r inspectReport) error {
	fmt.Fprintf(out, "%s -> %s\n\n", r.Type, r.Proxy)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDEPTH\tKIND\tNAME\tSIGNATURE\tMARKERS")
	for _, m := range r.Members {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", m.Index, m.Depth, m.Kind, m.Name, m.Signature, strings.Join(m.Markers, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(r.Sealed) > 0 {
		fmt.Fprintf(out, "\nSealed: %s\n", strings.Join(r.Sealed, ", "))
	}
	if len(r.Implemented) > 0 {
		fmt.Fprintf(out, "Implemented without new members: %s\n", strings.Join(r.Implemented, ", "))
	}
	fmt.Fprintf(out, "\nConstructors:\n")
	for _, c := range r.Constructors {
		fmt.Fprintf(out, "  %s\n", c)
	}
	return nil
}
