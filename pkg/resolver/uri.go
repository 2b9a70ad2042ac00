package resolver

import (
	"errors"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/marmos91/mythfs/pkg/catalog"
	"github.com/marmos91/mythfs/pkg/fserrors"
)

// Scheme is the URI scheme of logical file references.
const Scheme = "myth"

// FileRef is a parsed logical file reference,
// myth://[group@]host[:port]/path.
type FileRef struct {
	Group string
	Host  string

	// Port is 0 when the URI names none
	Port int

	// Path is relative to the storage group directory. It never begins
	// with "/" and never contains "..".
	Path string
}

// String renders the reference as a URI.
func (r FileRef) String() string {
	host := r.Host
	if r.Port != 0 {
		host += ":" + strconv.Itoa(r.Port)
	}
	return Scheme + "://" + r.Group + "@" + host + "/" + r.Path
}

// HostIsIP reports whether Host is a dotted-quad IPv4 address.
func (r FileRef) HostIsIP() bool {
	addr, err := netip.ParseAddr(r.Host)
	return err == nil && addr.Is4()
}

// Parse parses a logical file URI. The group defaults to catalog.DefaultGroup.
//
// Everything after the first "/" following the authority is the path,
// taken literally: "#", "?" and "%" are ordinary file name characters.
func Parse(uri string) (FileRef, error) {
	invalid := func(format string, args ...any) (FileRef, error) {
		err := fserrors.Newf(fserrors.InvalidArgument, "parse uri", format, args...)
		err.Path = uri
		return FileRef{}, err
	}

	remainder, ok := strings.CutPrefix(uri, Scheme+"://")
	if !ok {
		return invalid("scheme must be %q", Scheme)
	}
	authority, path, _ := strings.Cut(remainder, "/")

	ref := FileRef{Group: catalog.DefaultGroup}
	hostport := authority
	if group, rest, found := strings.Cut(authority, "@"); found {
		if group != "" {
			ref.Group = group
		}
		hostport = rest
	}

	host, port, err := splitHostPort(hostport)
	if err != nil {
		return invalid("malformed authority %q: %v", hostport, err)
	}
	if host == "" {
		return invalid("missing host")
	}
	ref.Host = host
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return invalid("invalid port %q", port)
		}
		ref.Port = n
	}

	path = strings.TrimLeft(path, "/")
	if path == "" {
		return invalid("missing path")
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return invalid("path escapes the storage group")
		}
	}
	ref.Path = path

	return ref, nil
}

// splitHostPort splits host[:port]. Unlike net.SplitHostPort the port is
// optional.
func splitHostPort(hostport string) (host, port string, err error) {
	if !strings.Contains(hostport, ":") {
		return hostport, "", nil
	}
	if strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]") {
		return strings.Trim(hostport, "[]"), "", nil
	}
	host, port, err = net.SplitHostPort(hostport)
	if err == nil && port == "" {
		err = errors.New("empty port")
	}
	return host, port, err
}
