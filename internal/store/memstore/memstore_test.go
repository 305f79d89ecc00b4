// SPDX-License-Identifier: AGPL-3.0-or-later

package memstore

import (
	"testing"

	"github.com/musergi/ospreid/internal/store/storetest"
)

func TestMemstoreConformsToStore(t *testing.T) {
	storetest.Run(t, New())
}
