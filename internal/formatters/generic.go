package formatters

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
)

var (
	jsonMarshalIndent = json.MarshalIndent
	xmlMarshalIndent  = xml.MarshalIndent
)

// genericJSONFormatter is a FormatterFunc that formats results as JSON
func genericJSONFormatter(ctx context.Context, r bootstrap.Results) ([]byte, error) {
	response := getResponse(r)

	responseJSON, err := jsonMarshalIndent(response, "", "    ")
	if err != nil {
		e := fmt.Errorf("%w with formatter %s: %v",
			ErrFormattingResults,
			"json",
			err,
		)

		return nil, e
	}

	return responseJSON, nil
}

// genericXMLFormatter is a FormatterFunc that formats results as XML
func genericXMLFormatter(ctx context.Context, r bootstrap.Results) ([]byte, error) {
	response := getResponse(r)

	responseXML, err := xmlMarshalIndent(response, "", "    ")
	if err != nil {
		e := fmt.Errorf("%w with formatter %s: %v",
			ErrFormattingResults,
			"xml",
			err,
		)

		return nil, e
	}

	return responseXML, nil
}
