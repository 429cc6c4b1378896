package request

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/fangwd/restup/internal/querysql"
	"github.com/fangwd/restup/internal/record"
)

// Parse builds a descriptor from a request URL.
func Parse(u *url.URL) (*Descriptor, error) {
	d := &Descriptor{Limit: DefaultLimit}

	if err := d.parsePath(u.Path); err != nil {
		return nil, err
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	// url.Values has no order; sort keys so conditions come out the same way
	// for the same request.
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, value := range query[key] {
			if err := d.parseParam(key, value); err != nil {
				return nil, err
			}
		}
	}

	if d.Where.Raw != "" && len(d.Where.Conditions) > 0 {
		return nil, fmt.Errorf("%w: where: cannot be combined with column conditions", ErrInvalid)
	}
	if len(d.Attached) > 1 {
		return nil, fmt.Errorf("%w: at most one attached: field", ErrInvalid)
	}
	return d, nil
}

// ParseString parses a path with an optional query string.
func ParseString(raw string) (*Descriptor, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return Parse(u)
}

func (d *Descriptor) parsePath(path string) error {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) > 2 {
		return fmt.Errorf("%w: path %q has too many segments", ErrInvalid, path)
	}

	table, columns, hasColumns := strings.Cut(parts[0], ".")
	if table == "" {
		return fmt.Errorf("%w: missing table in path %q", ErrInvalid, path)
	}
	d.Table = table

	if hasColumns {
		for _, c := range strings.Split(columns, ",") {
			if c == "" {
				return fmt.Errorf("%w: empty column name in %q", ErrInvalid, parts[0])
			}
			if c == "*" {
				d.Columns = nil
				break
			}
			d.Columns = append(d.Columns, c)
		}
	}

	if len(parts) == 2 && parts[1] != "" {
		d.RowID = parts[1]
		d.HasRowID = true
	}
	return nil
}

func (d *Descriptor) parseParam(key, value string) error {
	keyword, arg, ok := strings.Cut(key, ":")
	if !ok {
		return d.parseCondition(key, value)
	}

	switch keyword {
	case "limit":
		if arg == "" {
			arg = value
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: limit %q", ErrInvalid, arg)
		}
		d.Limit = n

	case "sort":
		return d.parseSort(arg, value)

	case "where":
		raw := arg
		if value != "" {
			raw += "=" + value
		}
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("%w: empty where:", ErrInvalid)
		}
		if strings.Contains(raw, ";") {
			return fmt.Errorf("%w: where: may not contain ';'", ErrInvalid)
		}
		d.Where.Raw = raw

	case "update":
		if arg == "" {
			return fmt.Errorf("%w: update: needs a column", ErrInvalid)
		}
		if d.Update == nil {
			d.Update = record.Row{}
		}
		d.Update[arg] = value

	case "attached":
		if arg == "" {
			return fmt.Errorf("%w: attached: needs a field", ErrInvalid)
		}
		size := -1
		if value != "" {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: attached:%s size %q", ErrInvalid, arg, value)
			}
			size = n
		}
		if d.Attached == nil {
			d.Attached = map[string]int{}
		}
		d.Attached[arg] = size

	default:
		return fmt.Errorf("%w: unknown keyword %q", ErrInvalid, keyword)
	}
	return nil
}

func (d *Descriptor) parseCondition(key, value string) error {
	column, opName, _ := strings.Cut(key, "-")
	if column == "" {
		return fmt.Errorf("%w: condition %q has no column", ErrInvalid, key)
	}
	op, ok := querysql.ParseOp(opName)
	if !ok {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalid, opName)
	}
	d.Where.Conditions = append(d.Where.Conditions, querysql.Compare{Column: column, Op: op, Value: value})
	return nil
}

// parseSort accepts "sort:col", "sort:-col,col2" and "sort:col=desc".
func (d *Descriptor) parseSort(arg, value string) error {
	if arg == "" {
		arg, value = value, ""
	}
	start := len(d.Sort)
	for _, name := range strings.Split(arg, ",") {
		key := querysql.SortKey{Column: name}
		if strings.HasPrefix(name, "-") {
			key = querysql.SortKey{Column: name[1:], Desc: true}
		}
		if key.Column == "" {
			return fmt.Errorf("%w: empty sort column", ErrInvalid)
		}
		d.Sort = append(d.Sort, key)
	}
	switch strings.ToLower(value) {
	case "", "asc":
	case "desc":
		for i := start; i < len(d.Sort); i++ {
			d.Sort[i].Desc = !d.Sort[i].Desc
		}
	default:
		return fmt.Errorf("%w: sort direction %q", ErrInvalid, value)
	}
	return nil
}
