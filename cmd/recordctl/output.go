package main

import (
	"fmt"
	"io"

	"stealthcompany.com/fhirrecord/internal/archive"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
)

func printNode(w io.Writer, n jsonpath.Node) error {
	data, err := n.MarshalIndent("", archive.Indent)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
