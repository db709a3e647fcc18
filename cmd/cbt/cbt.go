/*
Copyright 2026 Skylark Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// cbt is a command-line tool for reading and writing bigtable data and for
// basic table and instance administration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skylark-io/bigtable"
	"github.com/skylark-io/bigtable/internal/cbtconfig"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

var (
	config  *cbtconfig.Config
	fmtFile = flag.String("format-file", "", "file describing how to format cell values")

	client         *bigtable.Client
	adminClient    *bigtable.AdminClient
	instanceClient *bigtable.InstanceAdminClient

	formatting = newValueFormatting()
)

// clientOptions translates the cbt configuration into the client options
// shared by all three clients.
func clientOptions(c *cbtconfig.Config, endpoint string) []option.ClientOption {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if c.Creds != "" {
		opts = append(opts, option.WithCredentialsFile(c.Creds))
	}
	if c.UserAgent != "" {
		opts = append(opts, option.WithUserAgent(c.UserAgent))
	}
	if c.TLSCreds != nil {
		opts = append(opts, option.WithGRPCDialOption(grpc.WithTransportCredentials(c.TLSCreds)))
	}
	if c.TokenSource != nil {
		opts = append(opts, option.WithTokenSource(c.TokenSource))
	}
	return opts
}

func getClient() *bigtable.Client {
	if client == nil {
		var err error
		client, err = bigtable.NewClient(context.Background(), config.Project, config.Instance,
			clientOptions(config, config.DataEndpoint)...)
		if err != nil {
			log.Fatalf("Making bigtable.Client: %v", err)
		}
	}
	return client
}

func getAdminClient() *bigtable.AdminClient {
	if adminClient == nil {
		var err error
		adminClient, err = bigtable.NewAdminClient(context.Background(), config.Project, config.Instance,
			clientOptions(config, config.AdminEndpoint)...)
		if err != nil {
			log.Fatalf("Making bigtable.AdminClient: %v", err)
		}
	}
	return adminClient
}

func getInstanceAdminClient() *bigtable.InstanceAdminClient {
	if instanceClient == nil {
		var err error
		instanceClient, err = bigtable.NewInstanceAdminClient(context.Background(), config.Project,
			clientOptions(config, config.AdminEndpoint)...)
		if err != nil {
			log.Fatalf("Making bigtable.InstanceAdminClient: %v", err)
		}
	}
	return instanceClient
}

func main() {
	var err error
	config, err = cbtconfig.Load()
	if err != nil {
		log.Fatal(err)
	}
	config.RegisterFlags()

	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()
	if flag.NArg() == 0 {
		usage(os.Stderr)
		os.Exit(1)
	}

	if *fmtFile != "" {
		if err := formatting.parse(*fmtFile); err != nil {
			log.Fatal(err)
		}
	}

	ctx := context.Background()
	for _, cmd := range commands {
		if cmd.Name == flag.Arg(0) {
			if err := config.CheckFlags(cmd.Required); err != nil {
				log.Fatal(err)
			}
			cmd.do(ctx, flag.Args()[1:]...)
			return
		}
	}
	log.Fatalf("Unknown command %q", flag.Arg(0))
}

func usage(w *os.File) {
	fmt.Fprintf(w, "Usage: %s [flags] <command> ...\n\n", os.Args[0])
	flag.CommandLine.SetOutput(w)
	flag.CommandLine.PrintDefaults()
	fmt.Fprintf(w, "\n%s", cmdSummary)
}

var cmdSummary string // generated during init

func init() {
	var buf strings.Builder
	tw := new(strings.Builder)
	for _, cmd := range commands {
		fmt.Fprintf(tw, "cbt %s\t%s\n", cmd.Usage, cmd.Desc)
	}
	buf.WriteString("Commands:\n")
	buf.WriteString(tw.String())
	cmdSummary = buf.String()
}

type command struct {
	Name, Desc, Usage string
	do                func(context.Context, ...string)
	Required          cbtconfig.RequiredFlags
}

var commands = []command{
	{
		Name: "count", Desc: "Count rows in a table", Usage: "count <table>",
		do: doCount, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "createfamily", Desc: "Create a column family", Usage: "createfamily <table> <family>",
		do: doCreateFamily, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "createtable", Desc: "Create a table", Usage: "createtable <table> [splits=split1,split2,...]",
		do: doCreateTable, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "deletefamily", Desc: "Delete a column family", Usage: "deletefamily <table> <family>",
		do: doDeleteFamily, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "deleterow", Desc: "Delete a row", Usage: "deleterow <table> <row>",
		do: doDeleteRow, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "deletetable", Desc: "Delete a table", Usage: "deletetable <table>",
		do: doDeleteTable, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "listinstances", Desc: "List instances in a project", Usage: "listinstances",
		do: doListInstances, Required: cbtconfig.ProjectRequired,
	},
	{
		Name: "lookup", Desc: "Read from a single row", Usage: "lookup <table> <row>",
		do: doLookup, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "ls", Desc: "List tables and column families", Usage: "ls [table]",
		do: doLS, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "read", Desc: "Read rows", Usage: "read <table> [start=<row>] [end=<row>] [prefix=<prefix>] [regex=<regex>] [count=<n>]",
		do: doRead, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "set", Desc: "Set value of a cell", Usage: "set <table> <row> family:column=val[@ts] ...",
		do: doSet, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "setgcpolicy", Desc: "Set the GC policy for a column family",
		Usage: "setgcpolicy <table> <family> ((maxage=<d> | maxversions=<n>) [(and|or) (maxage=<d> | maxversions=<n>)] | never)",
		do:    doSetGCPolicy, Required: cbtconfig.ProjectAndInstanceRequired,
	},
	{
		Name: "waitforreplication", Desc: "Block until all the completed writes have been replicated to all the clusters",
		Usage: "waitforreplication <table>",
		do:    doWaitForReplication, Required: cbtconfig.ProjectAndInstanceRequired,
	},
}

func doCount(ctx context.Context, args ...string) {
	if len(args) != 1 {
		log.Fatal("usage: cbt count <table>")
	}
	tbl := getClient().Open(args[0])

	n := 0
	err := tbl.ReadRows(ctx, bigtable.InfiniteRange(""), func(_ bigtable.Row) bool {
		n++
		return true
	}, bigtable.RowFilter(bigtable.ChainFilters(bigtable.CellsPerRowLimitFilter(1), bigtable.StripValueFilter())))
	if err != nil {
		log.Fatalf("Reading rows: %v", err)
	}
	fmt.Println(n)
}

func doCreateFamily(ctx context.Context, args ...string) {
	if len(args) != 2 {
		log.Fatal("usage: cbt createfamily <table> <family>")
	}
	if err := getAdminClient().CreateColumnFamily(ctx, args[0], args[1]); err != nil {
		log.Fatalf("Creating column family: %v", err)
	}
}

func doCreateTable(ctx context.Context, args ...string) {
	if len(args) < 1 {
		log.Fatal("usage: cbt createtable <table> [splits=split1,split2,...]")
	}
	var splits []string
	for _, arg := range args[1:] {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || key != "splits" {
			log.Fatalf("Bad argument %q", arg)
		}
		splits = strings.Split(val, ",")
	}
	var err error
	if len(splits) > 0 {
		err = getAdminClient().CreatePresplitTable(ctx, args[0], splits)
	} else {
		err = getAdminClient().CreateTable(ctx, args[0])
	}
	if err != nil {
		log.Fatalf("Creating table: %v", err)
	}
}

func doDeleteFamily(ctx context.Context, args ...string) {
	if len(args) != 2 {
		log.Fatal("usage: cbt deletefamily <table> <family>")
	}
	if err := getAdminClient().DeleteColumnFamily(ctx, args[0], args[1]); err != nil {
		log.Fatalf("Deleting column family: %v", err)
	}
}

func doDeleteRow(ctx context.Context, args ...string) {
	if len(args) != 2 {
		log.Fatal("usage: cbt deleterow <table> <row>")
	}
	tbl := getClient().Open(args[0])
	mut := bigtable.NewMutation()
	mut.DeleteRow()
	if err := tbl.Apply(ctx, args[1], mut); err != nil {
		log.Fatalf("Deleting row: %v", err)
	}
}

func doDeleteTable(ctx context.Context, args ...string) {
	if len(args) != 1 {
		log.Fatal("usage: cbt deletetable <table>")
	}
	if err := getAdminClient().DeleteTable(ctx, args[0]); err != nil {
		log.Fatalf("Deleting table: %v", err)
	}
}

func doListInstances(ctx context.Context, args ...string) {
	if len(args) != 0 {
		log.Fatal("usage: cbt listinstances")
	}
	is, err := getInstanceAdminClient().Instances(ctx)
	if err != nil {
		log.Fatalf("Getting list of instances: %v", err)
	}
	for _, i := range is {
		fmt.Printf("%-20s %s\n", i.Name, i.DisplayName)
	}
}

func doLookup(ctx context.Context, args ...string) {
	if len(args) != 2 {
		log.Fatal("usage: cbt lookup <table> <row>")
	}
	tbl := getClient().Open(args[0])
	r, err := tbl.ReadRow(ctx, args[1])
	if err != nil {
		log.Fatalf("Reading row: %v", err)
	}
	printRow(r)
}

func doLS(ctx context.Context, args ...string) {
	switch len(args) {
	default:
		log.Fatal("usage: cbt ls [table]")
	case 0:
		tables, err := getAdminClient().Tables(ctx)
		if err != nil {
			log.Fatalf("Getting list of tables: %v", err)
		}
		sort.Strings(tables)
		for _, table := range tables {
			fmt.Println(table)
		}
	case 1:
		ti, err := getAdminClient().TableInfo(ctx, args[0])
		if err != nil {
			log.Fatalf("Getting table info: %v", err)
		}
		sort.Slice(ti.FamilyInfos, func(i, j int) bool { return ti.FamilyInfos[i].Name < ti.FamilyInfos[j].Name })
		fmt.Printf("Family Name\tGC Policy\n")
		for _, fam := range ti.FamilyInfos {
			fmt.Printf("%s\t%s\n", fam.Name, fam.GCPolicy)
		}
	}
}

func doRead(ctx context.Context, args ...string) {
	if len(args) < 1 {
		log.Fatal("usage: cbt read <table> [args ...]")
	}
	tbl := getClient().Open(args[0])

	parsed := make(map[string]string)
	for _, arg := range args[1:] {
		key, val, ok := strings.Cut(arg, "=")
		if !ok {
			log.Fatalf("Bad arg %q", arg)
		}
		switch key {
		case "start", "end", "prefix", "regex", "count":
			parsed[key] = val
		default:
			log.Fatalf("Unknown arg key %q", key)
		}
	}
	if (parsed["start"] != "" || parsed["end"] != "") && parsed["prefix"] != "" {
		log.Fatal(`"start"/"end" may not be mixed with "prefix"`)
	}

	var rr bigtable.RowRange
	if prefix := parsed["prefix"]; prefix != "" {
		rr = bigtable.PrefixRange(prefix)
	} else {
		rr = bigtable.NewRange(parsed["start"], parsed["end"])
	}

	var opts []bigtable.ReadOption
	if regex := parsed["regex"]; regex != "" {
		opts = append(opts, bigtable.RowFilter(bigtable.RowKeyFilter(regex)))
	}
	if count := parsed["count"]; count != "" {
		n, err := strconv.ParseInt(count, 0, 64)
		if err != nil {
			log.Fatalf("Bad count %q: %v", count, err)
		}
		opts = append(opts, bigtable.LimitRows(n))
	}

	err := tbl.ReadRows(ctx, rr, func(r bigtable.Row) bool {
		printRow(r)
		return true
	}, opts...)
	if err != nil {
		log.Fatalf("Reading rows: %v", err)
	}
}

func doSet(ctx context.Context, args ...string) {
	if len(args) < 3 {
		log.Fatal("usage: cbt set <table> <row> family:column=val[@ts] ...")
	}
	tbl := getClient().Open(args[0])
	row := args[1]
	mut := bigtable.NewMutation()
	for _, arg := range args[2:] {
		col, val, ok := strings.Cut(arg, "=")
		if !ok {
			log.Fatalf("Bad set arg %q", arg)
		}
		family, column, ok := strings.Cut(col, ":")
		if !ok {
			log.Fatalf("Bad column %q", col)
		}
		ts := bigtable.Now()
		if val2, tsStr, ok := strings.Cut(val, "@"); ok {
			t, err := strconv.ParseInt(tsStr, 0, 64)
			if err != nil {
				log.Fatalf("Invalid timestamp %q: %v", tsStr, err)
			}
			val = val2
			ts = bigtable.Timestamp(t)
		}
		mut.Set(family, column, ts, []byte(val))
	}
	if err := tbl.Apply(ctx, row, mut); err != nil {
		log.Fatalf("Applying mutation: %v", err)
	}
}

func doSetGCPolicy(ctx context.Context, args ...string) {
	if len(args) < 3 {
		log.Fatal("usage: cbt setgcpolicy <table> <family> ...")
	}
	pol, err := parseGCPolicy(strings.Join(args[2:], " "))
	if err != nil {
		log.Fatal(err)
	}
	if err := getAdminClient().SetGCPolicy(ctx, args[0], args[1], pol); err != nil {
		log.Fatalf("Setting GC policy: %v", err)
	}
}

func doWaitForReplication(ctx context.Context, args ...string) {
	if len(args) != 1 {
		log.Fatal("usage: cbt waitforreplication <table>")
	}
	fmt.Printf("Waiting for all writes up to %s to be replicated.\n", time.Now().Format("2006/01/02-15:04:05"))
	if err := getAdminClient().WaitForReplication(ctx, args[0]); err != nil {
		log.Fatalf("Waiting for replication: %v", err)
	}
}

// parseGCPolicy parses a single policy or two policies joined by "and"/"or".
func parseGCPolicy(s string) (bigtable.GCPolicy, error) {
	words := strings.Fields(s)
	if len(words) == 1 && words[0] == "never" {
		return bigtable.NoGcPolicy(), nil
	}
	switch len(words) {
	case 1:
		return parseSinglePolicy(words[0])
	case 3:
		p1, err := parseSinglePolicy(words[0])
		if err != nil {
			return nil, err
		}
		p2, err := parseSinglePolicy(words[2])
		if err != nil {
			return nil, err
		}
		switch words[1] {
		case "and":
			return bigtable.IntersectionPolicy(p1, p2), nil
		case "or":
			return bigtable.UnionPolicy(p1, p2), nil
		}
		return nil, fmt.Errorf("want \"and\" or \"or\", got %q", words[1])
	}
	return nil, fmt.Errorf("invalid GC policy %q", s)
}

func parseSinglePolicy(s string) (bigtable.GCPolicy, error) {
	key, val, ok := strings.Cut(s, "=")
	if !ok {
		return nil, fmt.Errorf("invalid policy %q", s)
	}
	switch key {
	case "maxage":
		d, err := parseDuration(val)
		if err != nil {
			return nil, err
		}
		return bigtable.MaxAgePolicy(d), nil
	case "maxversions":
		n, err := strconv.ParseUint(val, 0, 16)
		if err != nil {
			return nil, err
		}
		return bigtable.MaxVersionsPolicy(int(n)), nil
	}
	return nil, fmt.Errorf("unknown policy key %q", key)
}

// parseDuration parses durations like time.ParseDuration but also accepts
// d days as a unit.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %v", s, err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func printRow(r bigtable.Row) {
	if len(r) == 0 {
		return
	}
	fmt.Println(strings.Repeat("-", 40))
	fmt.Println(r.Key())

	var fams []string
	for fam := range r {
		fams = append(fams, fam)
	}
	sort.Strings(fams)
	for _, fam := range fams {
		ris := r[fam]
		sort.Slice(ris, func(i, j int) bool { return ris[i].Column < ris[j].Column })
		for _, ri := range ris {
			ts := time.UnixMicro(int64(ri.Timestamp))
			fmt.Printf("  %-40s @ %s\n", ri.Column, ts.Format("2006/01/02-15:04:05.000000"))
			formatted, err := formatting.format(ri.Column, ri.Value)
			if err != nil {
				formatted = fmt.Sprintf("%q", ri.Value)
			}
			fmt.Printf("    %s\n", formatted)
		}
	}
}
