// Command statementd serves statement tables over HTTP and gRPC.
//
// The server opens one SQLite database, registers the statement module and
// optionally applies a YAML catalog of statement tables, re-applying it on a
// schedule. Clients call the tables by name with positional or named
// arguments, or send raw SQL. With -peers set, federated queries run on
// every peer server as well and the row sets are merged.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/SimonWaldherr/stmtvtab"
	"github.com/SimonWaldherr/stmtvtab/internal/catalog"
	"github.com/SimonWaldherr/stmtvtab/internal/statement"
)

// Flags
var (
	flagDSN     = flag.String("dsn", "", "SQLite database path (required)")
	flagCatalog = flag.String("catalog", "", "Catalog YAML with statement table definitions (optional)")
	flagModule  = flag.String("module", stmtvtab.DefaultModule, "Module name to register")
	flagHTTP    = flag.String("http", ":8080", "HTTP listen address (empty to disable)")
	flagGRPC    = flag.String("grpc", ":9090", "gRPC listen address (empty to disable)")
	flagReload  = flag.String("reload", "", "Catalog reload schedule, e.g. '@every 30s' (empty to load once)")
	flagPeers   = flag.String("peers", "", "Comma-separated peer gRPC addresses for federated queries (optional)")
	flagVerbose = flag.Bool("v", false, "Verbose logging")
)

// HTTP and gRPC types
type queryRequest struct {
	// Name calls a statement table; SQL runs verbatim. Exactly one is set.
	Name string `json:"name,omitempty"`
	SQL  string `json:"sql,omitempty"`
	// Args are positional table-valued-function arguments for Name.
	Args []any `json:"args,omitempty"`
	// Params constrain named parameter columns of Name with equality.
	Params map[string]any `json:"params,omitempty"`
}

type queryResponse struct {
	ID       string           `json:"id"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Count    int              `json:"count"`
	Duration string           `json:"duration"`
	Error    string           `json:"error,omitempty"`
}

type listRequest struct{}

type statementEntry struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	Parameters []string `json:"parameters"`
}

type listResponse struct {
	Module     string           `json:"module"`
	Statements []statementEntry `json:"statements"`
	Error      string           `json:"error,omitempty"`
}

// gRPC JSON codec
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// gRPC service interface and descriptors (manual, no protobuf)
type StatementsServer interface {
	Query(context.Context, *queryRequest) (*queryResponse, error)
	List(context.Context, *listRequest) (*listResponse, error)
}

func registerStatementsServer(s *grpc.Server, srv StatementsServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "statementd.Statements",
		HandlerType: (*StatementsServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Query", Handler: _Statements_Query_Handler},
			{MethodName: "List", Handler: _Statements_List_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "statementd",
	}, srv)
}

func _Statements_Query_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(queryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatementsServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/statementd.Statements/Query"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatementsServer).Query(ctx, req.(*queryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Statements_List_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(listRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatementsServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/statementd.Statements/List"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatementsServer).List(ctx, req.(*listRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// server state
type server struct {
	db       *sql.DB
	module   string
	started  time.Time
	reloader *catalog.Reloader
	peers    []string
	verbose  bool
}

// StatementsServer implementation
func (s *server) Query(ctx context.Context, req *queryRequest) (*queryResponse, error) {
	start := time.Now()
	id := uuid.NewString()

	q, args, err := buildQuery(req)
	if err != nil {
		return &queryResponse{ID: id, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	if s.verbose {
		log.Printf("[%s] %s args=%v", id, q, args)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return &queryResponse{ID: id, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return &queryResponse{ID: id, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	out, err := rowsToSlice(rows, cols)
	if err != nil {
		return &queryResponse{ID: id, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	return &queryResponse{
		ID:       id,
		Columns:  cols,
		Rows:     out,
		Count:    len(out),
		Duration: time.Since(start).String(),
	}, nil
}

// buildQuery turns a request into SQL plus bind arguments. Calls by name use
// the table-valued form for positional arguments and hidden-column equality
// for named ones.
func buildQuery(req *queryRequest) (string, []any, error) {
	switch {
	case req.SQL != "" && req.Name != "":
		return "", nil, fmt.Errorf("request carries both sql and name")
	case req.SQL != "":
		return req.SQL, req.Args, nil
	case req.Name == "":
		return "", nil, fmt.Errorf("request carries neither sql nor name")
	case len(req.Args) > 0 && len(req.Params) > 0:
		return "", nil, fmt.Errorf("args and params cannot be combined")
	}

	table := statement.QuoteIdent(req.Name)
	if len(req.Args) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(req.Args)), ",")
		return fmt.Sprintf("SELECT * FROM %s(%s)", table, marks), req.Args, nil
	}
	if len(req.Params) > 0 {
		conds := make([]string, 0, len(req.Params))
		args := make([]any, 0, len(req.Params))
		for k, v := range req.Params {
			if !bindableName(k) {
				return "", nil, fmt.Errorf("parameter name %q cannot be bound", k)
			}
			conds = append(conds, fmt.Sprintf("%s = :%s", statement.QuoteIdent(k), k))
			args = append(args, sql.Named(k, v))
		}
		return fmt.Sprintf("SELECT * FROM %s WHERE %s", table, strings.Join(conds, " AND ")), args, nil
	}
	return "SELECT * FROM " + table, nil, nil
}

// bindableName reports whether database/sql accepts k as a named argument.
func bindableName(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 127:
			continue
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (s *server) List(ctx context.Context, _ *listRequest) (*listResponse, error) {
	resp := &listResponse{Module: s.module}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table'
		   AND (sql LIKE 'CREATE VIRTUAL TABLE%USING ' || ? || '(%'
		     OR sql LIKE 'CREATE VIRTUAL TABLE%USING "' || ? || '"(%')
		 ORDER BY name`, s.module, s.module)
	if err != nil {
		resp.Error = err.Error()
		return resp, nil
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			resp.Error = err.Error()
			return resp, nil
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		resp.Error = err.Error()
		return resp, nil
	}

	for _, name := range names {
		entry, err := s.describeTable(ctx, name)
		if err != nil {
			resp.Error = err.Error()
			return resp, nil
		}
		resp.Statements = append(resp.Statements, entry)
	}
	return resp, nil
}

func (s *server) describeTable(ctx context.Context, name string) (statementEntry, error) {
	entry := statementEntry{Name: name}
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, hidden FROM pragma_table_xinfo(?) ORDER BY cid", name)
	if err != nil {
		return entry, err
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		var hidden int
		if err := rows.Scan(&col, &hidden); err != nil {
			return entry, err
		}
		if hidden != 0 {
			entry.Parameters = append(entry.Parameters, col)
		} else {
			entry.Columns = append(entry.Columns, col)
		}
	}
	return entry, rows.Err()
}

// HTTP handlers
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Query(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleStatements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp, _ := s.List(r.Context(), &listRequest{})
	writeJSON(w, resp)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	list, _ := s.List(r.Context(), &listRequest{})
	status := map[string]any{
		"ok":         true,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"module":     s.module,
		"statements": len(list.Statements),
		"uptime":     time.Since(s.started).String(),
	}
	if s.reloader != nil {
		status["catalog_loads"] = s.reloader.Loads()
		if last := s.reloader.LastLoad(); !last.IsZero() {
			status["catalog_last_load"] = last.UTC().Format(time.RFC3339)
		}
	}
	if len(s.peers) > 0 {
		status["peers"] = s.peers
	}
	writeJSON(w, status)
}

// Federated query: run locally, fan out to all peers via the gRPC JSON codec
// and merge rows (concat).
func (s *server) handleFederatedQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(s.peers) == 0 {
		http.Error(w, "No peers configured", http.StatusBadRequest)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	start := time.Now()

	// Local first
	local, _ := s.Query(r.Context(), &req)
	if local.Error != "" {
		writeJSON(w, local)
		return
	}
	cols := append([]string{}, local.Columns...)
	rows := append([]map[string]any{}, local.Rows...)

	// Query peers concurrently
	type peerRes struct {
		rows []map[string]any
		err  error
	}
	ch := make(chan peerRes, len(s.peers))
	var wg sync.WaitGroup
	for _, addr := range s.peers {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			out, err := grpcQuery(addr, &req)
			if err != nil {
				ch <- peerRes{nil, fmt.Errorf("peer %s: %w", addr, err)}
				return
			}
			// Peers answering with a different shape are skipped.
			if !equalColumns(cols, out.Columns) {
				ch <- peerRes{nil, fmt.Errorf("peer %s: columns mismatch", addr)}
				return
			}
			ch <- peerRes{out.Rows, nil}
		}(strings.TrimSpace(addr))
	}
	wg.Wait()
	close(ch)
	for res := range ch {
		if res.err != nil {
			if s.verbose {
				log.Printf("[%s] federation: %v", local.ID, res.err)
			}
			continue
		}
		rows = append(rows, res.rows...)
	}
	writeJSON(w, &queryResponse{
		ID:       local.ID,
		Columns:  cols,
		Rows:     rows,
		Count:    len(rows),
		Duration: time.Since(start).String(),
	})
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// gRPC JSON client helper
func grpcQuery(addr string, req *queryRequest) (*queryResponse, error) {
	conn, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	var resp queryResponse
	if err := conn.Invoke(context.Background(), "/statementd.Statements/Query", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return &resp, errors.New(resp.Error)
	}
	return &resp, nil
}

// rowsToSlice reads all rows into a slice of maps so they can be serialized.
func rowsToSlice(rows *sql.Rows, cols []string) ([]map[string]any, error) {
	var out []map[string]any
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = cells[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func main() {
	flag.Parse()
	if *flagDSN == "" {
		log.Fatal("missing -dsn")
	}

	db, err := sql.Open("sqlite", *flagDSN)
	if err != nil {
		log.Fatalf("open error: %v", err)
	}
	defer db.Close()

	if err := stmtvtab.RegisterAs(db, *flagModule); err != nil {
		log.Fatalf("register error: %v", err)
	}

	srv := &server{
		db:      db,
		module:  *flagModule,
		started: time.Now(),
		verbose: *flagVerbose,
	}
	if p := strings.TrimSpace(*flagPeers); p != "" {
		srv.peers = strings.Split(p, ",")
	}

	if *flagCatalog != "" {
		cat, err := catalog.Load(*flagCatalog)
		if err != nil {
			log.Fatalf("catalog error: %v", err)
		}
		if cat.Module != *flagModule {
			if err := stmtvtab.RegisterAs(db, cat.Module); err != nil {
				log.Fatalf("register error: %v", err)
			}
			srv.module = cat.Module
		}
		if *flagReload != "" {
			rel := catalog.NewReloader(db, *flagCatalog)
			if err := rel.Start(*flagReload); err != nil {
				log.Fatalf("catalog reload error: %v", err)
			}
			defer rel.Stop()
			srv.reloader = rel
		} else {
			if err := cat.Apply(context.Background(), db); err != nil {
				log.Fatalf("catalog apply error: %v", err)
			}
			log.Printf("catalog: applied %d statement tables", len(cat.Statements))
		}
	}

	// Register JSON codec for gRPC
	encoding.RegisterCodec(jsonCodec{})

	// Start gRPC server
	if *flagGRPC != "" {
		go func() {
			lis, err := net.Listen("tcp", *flagGRPC)
			if err != nil {
				log.Printf("gRPC listen error: %v", err)
				return
			}
			gs := grpc.NewServer()
			registerStatementsServer(gs, srv)
			log.Printf("gRPC listening on %s", *flagGRPC)
			if err := gs.Serve(lis); err != nil {
				log.Printf("gRPC serve error: %v", err)
			}
		}()
	}

	// Start HTTP server
	if *flagHTTP != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/query", srv.handleQuery)
		mux.HandleFunc("/api/federated/query", srv.handleFederatedQuery)
		mux.HandleFunc("/api/statements", srv.handleStatements)
		mux.HandleFunc("/api/status", srv.handleStatus)
		log.Printf("HTTP listening on %s", *flagHTTP)
		if err := http.ListenAndServe(*flagHTTP, mux); err != nil {
			log.Fatalf("HTTP serve error: %v", err)
		}
	} else {
		// If HTTP disabled, block on gRPC only
		select {}
	}
}
