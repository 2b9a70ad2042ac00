package badger

import (
	"fmt"
)

// Key schema:
//
//	loc:<seq>      -> JSON location, seq is a zero-padded insertion counter
//	lid:<uuid>     -> loc key of that location
//	ip:<address>   -> hostname whose BackendServerIP is address
//	host:<name>    -> BackendServerIP of name
//	seq:loc        -> badger sequence backing <seq>
const (
	prefixLocation   = "loc:"
	prefixLocationID = "lid:"
	prefixIP         = "ip:"
	prefixHost       = "host:"
	keyLocationSeq   = "seq:loc"
)

func keyLocation(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixLocation, seq))
}

func keyLocationID(id string) []byte {
	return []byte(prefixLocationID + id)
}

func keyIP(ip string) []byte {
	return []byte(prefixIP + ip)
}

func keyHost(host string) []byte {
	return []byte(prefixHost + host)
}
