// Package hci advertises Fastcon packets through a local Bluetooth
// controller using raw HCI LE commands.
//
// The advertiser writes three commands per payload change:
//
//	LE Set Advertising Parameters  (OGF 0x08, OCF 0x0006)
//	LE Set Advertising Data        (OGF 0x08, OCF 0x0008)
//	LE Set Advertising Enable      (OGF 0x08, OCF 0x000A)
//
// Advertising is non-connectable (ADV_NONCONN_IND) on all three primary
// channels. Command Complete events are not read back; a failed write is the
// only error reported. Raw HCI sockets exist on Linux only and need
// CAP_NET_ADMIN, and bluetoothd must not own the adapter at the same time.
package hci
