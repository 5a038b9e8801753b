package metadata

import "github.com/conduit-lang/hyperapi/internal/apierr"

func errUnknownFormat(name string) error {
	return apierr.Configuration("unknown format %q", name)
}

func errUnknownFilter(class, id string) error {
	return apierr.Configuration("resource %s references unknown filter %q", class, id)
}

func errDuplicateOperation(class, name string) error {
	return apierr.Configuration("resource %s declares operation %q twice", class, name)
}
