package docbin_test

import (
	"fmt"
	"log"

	"github.com/twinfer/docbin/pkg/csvmap"
	"github.com/twinfer/docbin/pkg/docbin"
)

// Example demonstrates basic usage of the docbin package
func Example() {
	jsonData := []byte(`{"title":"Kafka on the Shore","price":25.17}`)

	// Convert JSON to MessagePack
	binData, err := docbin.EncodeFromJSON(jsonData, docbin.FormatMsgpack)
	if err != nil {
		log.Fatal(err)
	}

	// And back again; member order and number precision survive
	back, err := docbin.DecodeToJSON(binData, docbin.FormatMsgpack)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(back))
	// Output: {"title":"Kafka on the Shore","price":25.17}
}

// Example_transcode demonstrates converting between two binary formats
func Example_transcode() {
	jsonData := []byte(`[1,2,3]`)
	mp, err := docbin.EncodeFromJSON(jsonData, docbin.FormatMsgpack)
	if err != nil {
		log.Fatal(err)
	}

	ub, err := docbin.Transcode(mp, docbin.FormatMsgpack, docbin.FormatUBJSON)
	if err != nil {
		log.Fatal(err)
	}

	back, err := docbin.DecodeToJSON(ub, docbin.FormatUBJSON)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(back))
	// Output: [1,2,3]
}

// Example_csv demonstrates decoding tabular text with a mapping config
func Example_csv() {
	cfg := &csvmap.Config{Header: true}
	csvData := []byte("title,price\nNorwegian Wood,14.5\n")

	jsonData, err := docbin.DecodeToJSON(csvData, docbin.FormatCSV, docbin.WithCSVConfig(cfg))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(jsonData))
	// Output: [{"title":"Norwegian Wood","price":14.5}]
}
