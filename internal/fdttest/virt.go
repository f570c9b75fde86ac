package fdttest

// VirtTree is a trimmed-down QEMU riscv "virt" machine tree.
func VirtTree() *Node {
	return N("",
		P("#address-cells", 2),
		P("#size-cells", 2),
		P("compatible", "riscv-virtio"),
		P("model", "riscv-virtio,qemu"),
		N("chosen",
			P("bootargs", "console=ttyS0"),
			P("stdout-path", "/soc/uart@10000000"),
		),
		N("aliases",
			P("serial0", "/soc/uart@10000000"),
			P("rtc", "/soc/rtc@101000"),
			P("bogus", "uart@10000000"),
		),
		N("memory@80000000",
			P("device_type", "memory"),
			P("reg", uint64(0x80000000), uint64(0x8000000)),
		),
		N("cpus",
			P("#address-cells", 1),
			P("#size-cells", 0),
			P("timebase-frequency", 0x989680),
			N("cpu@0",
				P("phandle", 1),
				P("device_type", "cpu"),
				P("reg", 0),
				P("status", "okay"),
				P("compatible", "riscv"),
				P("riscv,isa", "rv64imafdcsu"),
				N("interrupt-controller",
					P("#interrupt-cells", 1),
					P("interrupt-controller"),
					P("compatible", "riscv,cpu-intc"),
					P("phandle", 2),
				),
			),
		),
		N("soc",
			P("#address-cells", 2),
			P("#size-cells", 2),
			P("compatible", "simple-bus"),
			P("ranges"),
			N("rtc@101000",
				P("interrupts", 0xb),
				P("interrupt-parent", 3),
				P("reg", uint64(0x101000), uint64(0x1000)),
				P("compatible", "google,goldfish-rtc"),
			),
			N("uart@10000000",
				P("interrupts", 0xa),
				P("interrupt-parent", 3),
				P("clock-frequency", 0x384000),
				P("reg", uint64(0x10000000), uint64(0x100)),
				P("compatible", "ns16550a"),
			),
			N("plic@c000000",
				P("phandle", 3),
				P("riscv,ndev", 0x35),
				P("reg", uint64(0xc000000), uint64(0x210000)),
				P("interrupts-extended", 2, 0xb, 2, 9),
				P("interrupt-controller"),
				P("compatible", "sifive,plic-1.0.0", "riscv,plic0"),
				P("#interrupt-cells", 1),
			),
			N("poweroff",
				P("value", 0x5555),
				P("offset", 0),
				P("regmap", 4),
				P("compatible", "syscon-poweroff"),
			),
			N("test@100000",
				P("linux,phandle", 4),
				P("reg", uint64(0x100000), uint64(0x1000)),
				P("compatible", "sifive,test1", "sifive,test0", "syscon"),
			),
			N("mac",
				P("local-mac-address", []byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}),
			),
		),
	)
}

// Virt builds VirtTree with a couple of memory reservations.
func Virt() *Blob {
	return Build(VirtTree(), Options{
		Reservations: []Reservation{
			{Address: 0x80000000, Size: 0x200000},
			{Address: 0x87e00000, Size: 0x1000},
		},
	})
}
